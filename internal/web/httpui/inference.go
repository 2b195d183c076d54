package httpui

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/dmitrijs2005/mnistlab/internal/common"
	"github.com/dmitrijs2005/mnistlab/internal/web/imaging"
	"github.com/dmitrijs2005/mnistlab/internal/web/models"
	"github.com/dmitrijs2005/mnistlab/internal/web/services"
	"github.com/dmitrijs2005/mnistlab/internal/web/sessions"
)

// maxUploadRequest leaves room for multipart framing around the image.
const maxUploadRequest = imaging.MaxUploadBytes + 64<<10

type gridCell struct {
	SampleID int64
	Label    int
}

type probRow struct {
	Class int
	P     float64
	Top   bool
}

type resultView struct {
	Label      int
	Confidence float64
	TrueLabel  *int
	Correct    *bool
	Logged     bool
	Rows       []probRow
}

type inferenceView struct {
	BackendDown bool
	Accuracy    models.Accuracy
	Grid        []gridCell
	Result      *resultView
}

func newResultView(res *services.PredictionResult) *resultView {
	v := &resultView{
		Label:      res.Label,
		Confidence: res.Confidence,
		TrueLabel:  res.TrueLabel,
		Correct:    res.Correct,
		Logged:     res.Logged,
	}
	for c, p := range res.Probabilities {
		v.Rows = append(v.Rows, probRow{Class: c, P: p, Top: c == res.Label})
	}
	return v
}

func gridView(sess *sessions.Session) []gridCell {
	cells := make([]gridCell, 0, len(sess.Grid))
	for _, g := range sess.Grid {
		cells = append(cells, gridCell{SampleID: g.SampleID, Label: g.Label})
	}
	return cells
}

// ensureGrid draws a grid into the session when it has none. It reports
// whether the session changed.
func (u *UI) ensureGrid(r *http.Request, sess *sessions.Session) (bool, error) {
	if len(sess.Grid) > 0 {
		return false, nil
	}
	slots, err := u.predictions.DrawGrid(r.Context())
	if err != nil {
		return false, err
	}
	grid := make([]sessions.GridEntry, 0, len(slots))
	for _, s := range slots {
		e := sessions.GridEntry{Label: s.Label}
		if s.Sample != nil {
			e.SampleID = s.Sample.ID
		}
		grid = append(grid, e)
	}
	sess.Grid = grid
	return true, nil
}

func (u *UI) renderInference(w http.ResponseWriter, r *http.Request, status int, view inferenceView, errMsg string) {
	sess := sessions.FromContext(r.Context())
	view.Accuracy = sess.Accuracy()
	if view.Grid == nil && !view.BackendDown {
		view.Grid = gridView(sess)
	}
	u.render(w, r, status, "inference", pageData{Title: "Inference", Error: errMsg, Data: view})
}

func (u *UI) backendDown(w http.ResponseWriter, r *http.Request, err error) {
	u.logger.Warn(r.Context(), "inference backend unavailable", "error", err)
	u.renderInference(w, r, http.StatusServiceUnavailable, inferenceView{BackendDown: true}, "")
}

func (u *UI) handleInference(w http.ResponseWriter, r *http.Request) {
	sess := sessions.FromContext(r.Context())

	if err := u.predictions.BackendHealthy(r.Context()); err != nil {
		u.backendDown(w, r, err)
		return
	}

	changed, err := u.ensureGrid(r, sess)
	if err != nil {
		u.logger.Error(r.Context(), "grid draw failed", "error", err)
		u.renderError(w, r, http.StatusInternalServerError, "Sample corpus is temporarily unavailable")
		return
	}
	if changed && !u.save(w, r, sess) {
		return
	}
	u.renderInference(w, r, http.StatusOK, inferenceView{}, "")
}

func (u *UI) handleGridRefresh(w http.ResponseWriter, r *http.Request) {
	sess := sessions.FromContext(r.Context())
	sess.Grid = nil
	if _, err := u.ensureGrid(r, sess); err != nil {
		u.logger.Error(r.Context(), "grid draw failed", "error", err)
		u.renderError(w, r, http.StatusInternalServerError, "Sample corpus is temporarily unavailable")
		return
	}
	if !u.save(w, r, sess) {
		return
	}
	http.Redirect(w, r, "/inference", http.StatusSeeOther)
}

func (u *UI) handleGridPredict(w http.ResponseWriter, r *http.Request) {
	sess := sessions.FromContext(r.Context())

	id, err := strconv.ParseInt(r.PostFormValue("sample_id"), 10, 64)
	if err != nil || id <= 0 {
		u.renderInference(w, r, http.StatusBadRequest, inferenceView{}, "Pick a digit from the grid")
		return
	}
	if _, ok := sess.GridLabel(id); !ok {
		u.renderInference(w, r, http.StatusBadRequest, inferenceView{}, "That digit is no longer on the grid")
		return
	}

	res, err := u.predictions.PredictGrid(r.Context(), sess.Account(), id)
	if err != nil {
		switch {
		case services.IsBackendDown(err):
			u.backendDown(w, r, err)
		case errors.Is(err, common.ErrorNotFound):
			u.renderInference(w, r, http.StatusNotFound, inferenceView{}, "That sample no longer exists")
		default:
			u.logger.Error(r.Context(), "grid prediction failed", "error", err)
			u.renderError(w, r, http.StatusInternalServerError, "Prediction failed")
		}
		return
	}

	if res.Correct != nil {
		sess.RecordGrid(*res.Correct)
	}
	if !u.save(w, r, sess) {
		return
	}
	u.renderInference(w, r, http.StatusOK, inferenceView{Result: newResultView(res)}, "")
}

func (u *UI) handleUpload(w http.ResponseWriter, r *http.Request) {
	sess := sessions.FromContext(r.Context())

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadRequest)
	if err := r.ParseMultipartForm(1 << 20); err != nil {
		u.renderInference(w, r, http.StatusBadRequest, inferenceView{}, "Upload must be an image of at most 4 MiB")
		return
	}
	defer func() {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}()

	file, hdr, err := r.FormFile("image")
	if err != nil {
		u.renderInference(w, r, http.StatusBadRequest, inferenceView{}, "Choose an image to upload")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		u.renderInference(w, r, http.StatusBadRequest, inferenceView{}, "Could not read the upload")
		return
	}
	contentType := hdr.Header.Get("Content-Type")
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = http.DetectContentType(data)
	}
	invert := r.PostFormValue("invert") != ""

	res, err := u.predictions.PredictUpload(r.Context(), sess.Account(), data, contentType, invert)
	if err != nil {
		switch {
		case services.IsBackendDown(err):
			u.backendDown(w, r, err)
		case errors.Is(err, common.ErrorValidation):
			u.renderInference(w, r, http.StatusBadRequest, inferenceView{}, "Unsupported or corrupt image")
		default:
			u.logger.Error(r.Context(), "upload prediction failed", "error", err)
			u.renderError(w, r, http.StatusInternalServerError, "Prediction failed")
		}
		return
	}

	u.renderInference(w, r, http.StatusOK, inferenceView{Result: newResultView(res)}, "")
}
