package devserver

import (
	"cmp"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/pavelanni/aceplus/internal/model"
)

const (
	maxUploadMemory = 32 << 20
	noQuestions     = "No questions could be extracted from the images"
)

type generationJob struct {
	status    model.JobStatus
	total     int
	completed int
	questions []model.Question
	message   string
}

// secureFilename keeps the base name and replaces anything outside [A-Za-z0-9._-].
func secureFilename(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, `\`, "/"))
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return strings.Trim(b.String(), "._")
}

func (s *Server) handleUploadImages(w http.ResponseWriter, r *http.Request) {
	claims := userFromContext(r.Context())
	if err := r.ParseMultipartForm(maxUploadMemory); err != nil {
		writeMessage(w, http.StatusBadRequest, "No images provided")
		return
	}

	var names []string
	for key := range r.MultipartForm.File {
		if strings.HasPrefix(key, "image_") {
			names = append(names, key)
		}
	}
	if len(names) == 0 {
		writeMessage(w, http.StatusBadRequest, "No images provided")
		return
	}
	sortFieldNames(names)

	stamp := s.now().Unix()
	var saved []string
	for _, key := range names {
		for _, fh := range r.MultipartForm.File[key] {
			base := secureFilename(fh.Filename)
			if base == "" {
				continue
			}
			f, err := fh.Open()
			if err != nil {
				slog.Error("open uploaded part", "field", key, "error", err)
				continue
			}
			data, err := io.ReadAll(f)
			f.Close()
			if err != nil {
				slog.Error("read uploaded part", "field", key, "error", err)
				continue
			}
			ct := fh.Header.Get("Content-Type")
			if !strings.HasPrefix(ct, "image/") {
				continue
			}
			name := fmt.Sprintf("%s_%d_%s", claims.Sub, stamp, base)
			s.mu.Lock()
			s.uploads[name] = storedUpload{contentType: ct, data: data}
			s.mu.Unlock()
			saved = append(saved, name)
		}
	}
	if len(saved) == 0 {
		writeMessage(w, http.StatusBadRequest, "No valid images uploaded")
		return
	}
	slog.Info("images uploaded", "user", claims.Sub, "count", len(saved))
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "Images uploaded successfully",
		"files":   saved,
	})
}

// sortFieldNames orders image_0, image_1, ..., image_10 numerically.
func sortFieldNames(names []string) {
	idx := func(n string) int {
		i, err := strconv.Atoi(strings.TrimPrefix(n, "image_"))
		if err != nil {
			return math.MaxInt
		}
		return i
	}
	slices.SortStableFunc(names, func(a, b string) int { return cmp.Compare(idx(a), idx(b)) })
}

func (s *Server) handleUploadedFile(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "filename")
	s.mu.Lock()
	up, ok := s.uploads[name]
	s.mu.Unlock()
	if !ok {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", up.contentType)
	w.Write(up.data)
}

func (s *Server) handleGenerateFromImages(w http.ResponseWriter, r *http.Request) {
	claims := userFromContext(r.Context())
	var req struct {
		Filenames []string `json:"filenames"`
	}
	if err := decodeJSON(w, r, &req); err != nil || len(req.Filenames) == 0 {
		writeMessage(w, http.StatusBadRequest, "No images provided")
		return
	}

	var missing []string
	images := make([][]byte, 0, len(req.Filenames))
	s.mu.Lock()
	for _, name := range req.Filenames {
		up, ok := s.uploads[name]
		if !ok {
			missing = append(missing, name)
			continue
		}
		images = append(images, up.data)
	}
	s.mu.Unlock()
	if len(missing) > 0 {
		writeMessage(w, http.StatusNotFound, "Some images were not found: "+strings.Join(missing, ", "))
		return
	}

	id := uuid.NewString()
	j := &generationJob{status: model.JobProcessing}
	s.mu.Lock()
	s.jobs[id] = j
	offset := s.bankCursor
	s.bankCursor += len(images) * questionsPerImage
	s.mu.Unlock()

	s.jobsDone.Add(1)
	go s.runJob(id, j, images, offset)

	slog.Info("job queued", "job_id", id, "user", claims.Sub, "images", len(images))
	writeJSON(w, http.StatusAccepted, map[string]string{
		"message": "Image processing started",
		"job_id":  id,
	})
}

// runJob simulates generation. The first step only discovers how many
// questions there will be; each later step produces one question. Images
// whose content is not a recognizable image yield no questions.
func (s *Server) runJob(id string, j *generationJob, images [][]byte, offset int) {
	defer s.jobsDone.Done()

	var planned []model.Question
	for _, data := range images {
		if !strings.HasPrefix(mimetype.Detect(data).String(), "image/") {
			continue
		}
		for range questionsPerImage {
			planned = append(planned, s.bank[offset%len(s.bank)].Question)
			offset++
		}
	}

	ticker := time.NewTicker(s.jobStep)
	defer ticker.Stop()
	wait := func() bool {
		select {
		case <-s.ctx.Done():
			return false
		case <-ticker.C:
			return true
		}
	}

	if !wait() {
		return
	}
	s.mu.Lock()
	j.total = len(planned)
	s.mu.Unlock()

	for i := range planned {
		if !wait() {
			return
		}
		s.mu.Lock()
		j.completed = i + 1
		s.mu.Unlock()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if len(planned) == 0 {
		j.status = model.JobFailed
		j.message = noQuestions
		slog.Warn("job failed", "job_id", id, "reason", noQuestions)
		return
	}
	j.status = model.JobCompleted
	j.questions = planned
	slog.Info("job completed", "job_id", id, "questions", len(planned))
}

func (s *Server) handleCheckJobStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "jobID")

	s.mu.Lock()
	j, ok := s.jobs[id]
	if !ok {
		s.mu.Unlock()
		writeJSON(w, http.StatusNotFound, map[string]string{"status": "not_found", "message": "Job not found"})
		return
	}
	status, total, completed := j.status, j.total, j.completed
	questions, message := j.questions, j.message
	if status != model.JobProcessing {
		// Results are handed out once.
		delete(s.jobs, id)
	}
	s.mu.Unlock()

	switch status {
	case model.JobCompleted:
		if len(questions) == 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"status": string(model.JobFailed), "message": noQuestions})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"status": status, "questions": questions})
	case model.JobFailed:
		if message == "" {
			message = "Failed to process images"
		}
		writeJSON(w, http.StatusBadRequest, map[string]string{"status": string(status), "message": message})
	default:
		writeJSON(w, http.StatusOK, map[string]any{
			"status":    status,
			"total":     total,
			"completed": completed,
			"message":   "Job is still processing",
		})
	}
}
