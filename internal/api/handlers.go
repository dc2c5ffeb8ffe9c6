package api

import (
	"log"
	"net/http"
	"strconv"
	"strings"

	"meetscribe/internal/pipeline"
	"meetscribe/internal/quota"
	"meetscribe/internal/repository"
	"meetscribe/internal/stt"
	"meetscribe/internal/utils"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// Handler wires the HTTP surface to the pipeline and its collaborators
type Handler struct {
	pipeline *pipeline.Service
	guard    *quota.Guard
	repo     repository.JobRepository
}

// NewHandler creates the API handler
func NewHandler(svc *pipeline.Service, guard *quota.Guard, repo repository.JobRepository) *Handler {
	return &Handler{pipeline: svc, guard: guard, repo: repo}
}

// RegisterRoutes registers all routes on the engine
func (h *Handler) RegisterRoutes(r *gin.Engine) {
	r.GET("/health", healthCheck)

	v1 := r.Group("/api/v1")
	v1.Use(identityMiddleware())
	{
		v1.POST("/transcribe", h.transcribe)
		v1.GET("/transcribe/status", h.transcribeStatus)
		v1.GET("/jobs", h.listJobs)
		v1.GET("/jobs/:id", h.getJob)
		v1.GET("/usage", h.getUsage)
	}
}

// healthCheck returns server health status
func healthCheck(c *gin.Context) {
	utils.Success(c, gin.H{
		"status":  "ok",
		"service": "meetscribe",
	})
}

// transcribe handles POST /api/v1/transcribe
func (h *Handler) transcribe(c *gin.Context) {
	user := currentUser(c)

	file, err := c.FormFile("audio")
	if err != nil {
		utils.ErrorCoded(c, http.StatusBadRequest, pipeline.CodeBadUpload, "audio file is required", nil)
		return
	}

	src, err := file.Open()
	if err != nil {
		log.Printf("[API] Failed to open upload %s: %v", file.Filename, err)
		utils.ErrorCoded(c, http.StatusBadRequest, pipeline.CodeBadUpload, "failed to read audio upload", nil)
		return
	}
	defer src.Close()

	req := pipeline.Request{
		User:           user,
		Filename:       file.Filename,
		SizeBytes:      file.Size,
		ContentType:    file.Header.Get("Content-Type"),
		Audio:          src,
		Config:         configFromForm(c),
		MeetingContext: c.PostForm("meetingContext"),
	}

	log.Printf("[API] Transcribe request: user=%s tier=%s file=%s size=%d", user.ID, user.Tier, req.Filename, req.SizeBytes)

	result, perr := h.pipeline.Transcribe(c.Request.Context(), req)
	if perr != nil {
		extra := gin.H{}
		if perr.Stats != nil {
			extra["usage"] = perr.Stats
			extra["upgradeUrl"] = quota.UpgradeURL
		}
		utils.ErrorCoded(c, perr.Status, perr.Code, perr.Message, extra)
		return
	}

	utils.Success(c, resultBody(result))
}

// transcribeStatus handles GET /api/v1/transcribe/status
func (h *Handler) transcribeStatus(c *gin.Context) {
	user := currentUser(c)
	jobID := c.Query("jobId")
	filename := c.Query("filename")

	status, perr := h.pipeline.CheckStatus(c.Request.Context(), user, jobID, filename)
	if perr != nil {
		utils.ErrorCoded(c, perr.Status, perr.Code, perr.Message, nil)
		return
	}

	body := gin.H{"status": status.Status}
	if status.ErrorMessage != "" {
		body["error_message"] = status.ErrorMessage
	}
	if status.Result != nil {
		for k, v := range resultBody(status.Result) {
			body[k] = v
		}
	}
	utils.Success(c, body)
}

// listJobs handles GET /api/v1/jobs
func (h *Handler) listJobs(c *gin.Context) {
	if h.repo == nil {
		utils.Error(c, http.StatusServiceUnavailable, "job history requires a database")
		return
	}
	user := currentUser(c)

	limit, err := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if err != nil || limit < 1 {
		limit = 20
	}
	if limit > 100 {
		limit = 100 // Max limit
	}
	offset, err := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if err != nil || offset < 0 {
		offset = 0
	}

	jobs, err := h.repo.ListByUser(c.Request.Context(), user.ID, limit, offset)
	if err != nil {
		log.Printf("[API] Error listing jobs: %v", err)
		utils.Error(c, http.StatusInternalServerError, "failed to retrieve job history")
		return
	}

	items := make([]gin.H, 0, len(jobs))
	for _, job := range jobs {
		item := gin.H{
			"id":         job.ID.String(),
			"filename":   job.Filename,
			"status":     job.Status,
			"created_at": job.CreatedAt,
		}
		if job.DurationSeconds != nil {
			item["duration_seconds"] = *job.DurationSeconds
		}
		if job.Metadata != nil && job.Metadata.TranscriptText != nil {
			preview := *job.Metadata.TranscriptText
			if len(preview) > 100 {
				preview = preview[:100] + "..."
			}
			item["transcript_preview"] = preview
		}
		items = append(items, item)
	}

	utils.Success(c, gin.H{
		"items":  items,
		"limit":  limit,
		"offset": offset,
		"count":  len(items),
	})
}

// getJob handles GET /api/v1/jobs/:id
func (h *Handler) getJob(c *gin.Context) {
	if h.repo == nil {
		utils.Error(c, http.StatusServiceUnavailable, "job history requires a database")
		return
	}
	user := currentUser(c)

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		utils.Error(c, http.StatusBadRequest, "invalid id format")
		return
	}

	job, err := h.repo.GetJobByID(c.Request.Context(), id)
	if err != nil || job.UserID != user.ID {
		utils.Error(c, http.StatusNotFound, "job not found")
		return
	}

	response := gin.H{
		"id":              job.ID.String(),
		"filename":        job.Filename,
		"file_size_bytes": job.FileSizeBytes,
		"status":          job.Status,
		"tier":            job.Tier,
		"created_at":      job.CreatedAt,
	}
	if job.DurationSeconds != nil {
		response["duration_seconds"] = *job.DurationSeconds
	}
	if job.ErrorMessage != nil {
		response["error_message"] = *job.ErrorMessage
	}
	if job.CompletedAt != nil {
		response["completed_at"] = *job.CompletedAt
	}
	if job.Metadata != nil {
		response["metadata"] = job.Metadata
	}
	utils.Success(c, response)
}

// getUsage handles GET /api/v1/usage
func (h *Handler) getUsage(c *gin.Context) {
	user := currentUser(c)
	stats, err := h.guard.CurrentStats(c.Request.Context(), user.ID, user.Tier)
	if err != nil {
		log.Printf("[API] Error computing usage for %s: %v", user.ID, err)
		utils.Error(c, http.StatusInternalServerError, "failed to compute usage")
		return
	}
	utils.Success(c, gin.H{"usage": stats, "tier": user.Tier})
}

// configFromForm reads the transcription options from the multipart form
func configFromForm(c *gin.Context) stt.Config {
	cfg := stt.DefaultConfig()

	if v := c.PostForm("language"); v != "" {
		cfg.Language = v
	}
	switch c.PostForm("diarizationMode") {
	case stt.DiarizationNone:
		cfg.Diarization = stt.DiarizationNone
	case stt.DiarizationChannel:
		cfg.Diarization = stt.DiarizationChannel
	case stt.DiarizationSpeaker, "":
		cfg.Diarization = stt.DiarizationSpeaker
	}
	if v := c.PostForm("speakerSensitivity"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f >= 0 && f <= 1 {
			cfg.SpeakerSensitivity = f
		}
	}

	cfg.EnableSummarization = formBool(c, "enableSummarization")
	if cfg.EnableSummarization {
		cfg.SummaryType = c.PostForm("summaryType")
		cfg.SummaryLength = c.PostForm("summaryLength")
		cfg.SummaryContentType = c.PostForm("summaryContentType")
	}
	cfg.EnableSentiment = formBool(c, "enableSentiment")
	cfg.EnableTopics = formBool(c, "enableTopics")
	if cfg.EnableTopics {
		cfg.Topics = splitCSV(c.PostForm("topics"))
	}

	// translationLanguages accepts a comma list or a repeated form field
	langs := c.PostFormArray("translationLanguages")
	if len(langs) == 1 {
		langs = splitCSV(langs[0])
	}
	cfg.TranslationLanguages = langs

	return cfg
}

func formBool(c *gin.Context, field string) bool {
	v := strings.ToLower(c.PostForm(field))
	return v == "true" || v == "1" || v == "yes"
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// resultBody renders a pipeline result as the documented response shape
func resultBody(result *pipeline.Result) gin.H {
	body := gin.H{
		"segments":       result.Segments,
		"minutes":        result.Minutes,
		"transcriptText": result.TranscriptText,
		"transcriptSrt":  result.TranscriptSRT,
		"jobId":          result.ProviderJobID,
		"providerJob":    result.ProviderJob,
		"warnings":       result.Warnings,
	}
	if result.LimitExceeded != nil {
		body["limitExceeded"] = result.LimitExceeded
	}
	return body
}
