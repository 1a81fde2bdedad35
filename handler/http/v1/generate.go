package v1

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"quizforge/src/chunkplan"
	"quizforge/src/queue"
)

type GenerateRequest struct {
	Topic               string            `json:"topic"`
	SourceMaterial      string            `json:"source_material"`
	Count               int               `json:"count"`
	Difficulty          int               `json:"difficulty"`
	SourceRefs          []string          `json:"source_pdfs_list"`
	AllTopics           []string          `json:"all_topics"`
	MainHeader          string            `json:"main_header"`
	PromptOverrides     map[string]string `json:"custom_prompt_sections"`
	DifficultyOverrides map[string]string `json:"custom_difficulty_levels"`
}

type GenerateResponse struct {
	Message     string  `json:"message"`
	JobsCreated int     `json:"jobs_created"`
	JobIDs      []int64 `json:"job_ids"`
}

// Generate enqueues one generation job. The response returns immediately;
// clients poll /admin/jobs for progress.
func (h *Handler) Generate(c *gin.Context) {
	var req GenerateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		sendError(c, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}
	if req.Count <= 0 {
		req.Count = 5
	}
	if req.Difficulty <= 0 {
		req.Difficulty = 3
	}

	job, err := h.ledger.Enqueue(c.Request.Context(), queue.Payload{
		Topic:               req.Topic,
		SourceMaterial:      req.SourceMaterial,
		Count:               req.Count,
		Difficulty:          req.Difficulty,
		MainHeader:          req.MainHeader,
		Category:            req.MainHeader,
		AllTopics:           req.AllTopics,
		SourceRefs:          req.SourceRefs,
		PromptOverrides:     req.PromptOverrides,
		DifficultyOverrides: req.DifficultyOverrides,
	})
	if err != nil {
		sendError(c, http.StatusBadRequest, err)
		return
	}

	sendJSON(c, http.StatusAccepted, GenerateResponse{
		Message:     fmt.Sprintf("queued generation of %d questions for %q", req.Count, req.Topic),
		JobsCreated: 1,
		JobIDs:      []int64{job.ID},
	})
}

type SubSegmentInput struct {
	Title      string   `json:"title"`
	File       string   `json:"file"`
	PageCount  int      `json:"page_count"`
	SourceRefs []string `json:"source_pdfs_list"`
}

type AutoChunkGenerateRequest struct {
	SourceMaterial      string            `json:"source_material"`
	SegmentTitle        string            `json:"segment_title"`
	SubSegments         []SubSegmentInput `json:"sub_segments"`
	Count               int               `json:"count"`
	Difficulty          int               `json:"difficulty"`
	Multiplier          int               `json:"multiplier"`
	TargetPages         int               `json:"target_pages"`
	PromptOverrides     map[string]string `json:"custom_prompt_sections"`
	DifficultyOverrides map[string]string `json:"custom_difficulty_levels"`
}

type ChunkInfo struct {
	ChunkIndex int      `json:"chunk_index"`
	TopicName  string   `json:"topic_name"`
	Topics     []string `json:"topics"`
	SourceRefs []string `json:"source_refs"`
	PageCount  int      `json:"page_count"`
	JobIDs     []int64  `json:"job_ids,omitempty"`
}

type AutoChunkGenerateResponse struct {
	Message   string      `json:"message"`
	TotalJobs int         `json:"total_jobs"`
	Chunks    []ChunkInfo `json:"chunks"`
}

// AutoChunkGenerate plans chunks over a segment's sub-segments and
// enqueues multiplier jobs per chunk.
func (h *Handler) AutoChunkGenerate(c *gin.Context) {
	var req AutoChunkGenerateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		sendError(c, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}
	if len(req.SubSegments) == 0 {
		sendError(c, http.StatusBadRequest, fmt.Errorf("no sub_segments provided"))
		return
	}
	applyChunkDefaults(&req)

	chunks, err := chunkplan.Plan(req.SegmentTitle, toPlannerSegments(req.SubSegments), req.TargetPages)
	if err != nil {
		sendError(c, http.StatusBadRequest, err)
		return
	}

	totalJobs := 0
	infos := make([]ChunkInfo, 0, len(chunks))
	for _, chunk := range chunks {
		jobIDs := make([]int64, 0, req.Multiplier)
		for m := 0; m < req.Multiplier; m++ {
			job, err := h.ledger.Enqueue(c.Request.Context(), queue.Payload{
				Topic:               chunk.TopicName,
				SourceMaterial:      req.SourceMaterial,
				Count:               req.Count,
				Difficulty:          req.Difficulty,
				MainHeader:          req.SegmentTitle,
				Category:            req.SegmentTitle,
				AllTopics:           chunk.Topics,
				SourceRefs:          chunk.FileRefs,
				PromptOverrides:     req.PromptOverrides,
				DifficultyOverrides: req.DifficultyOverrides,
			})
			if err != nil {
				sendError(c, http.StatusInternalServerError, fmt.Errorf("failed to enqueue chunk %d: %w", chunk.Index, err))
				return
			}
			jobIDs = append(jobIDs, job.ID)
			totalJobs++
		}
		infos = append(infos, ChunkInfo{
			ChunkIndex: chunk.Index,
			TopicName:  chunk.TopicName,
			Topics:     chunk.Topics,
			SourceRefs: chunk.FileRefs,
			PageCount:  chunk.PageCount,
			JobIDs:     jobIDs,
		})
	}

	sendJSON(c, http.StatusAccepted, AutoChunkGenerateResponse{
		Message:   fmt.Sprintf("queued %d jobs over %d chunks", totalJobs, len(chunks)),
		TotalJobs: totalJobs,
		Chunks:    infos,
	})
}

type PreviewChunksResponse struct {
	TotalChunks int         `json:"total_chunks"`
	TargetPages int         `json:"target_pages"`
	Chunks      []ChunkInfo `json:"chunks"`
}

// PreviewChunks returns the chunk plan without creating any jobs.
func (h *Handler) PreviewChunks(c *gin.Context) {
	var req AutoChunkGenerateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		sendError(c, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}
	if len(req.SubSegments) == 0 {
		sendError(c, http.StatusBadRequest, fmt.Errorf("no sub_segments provided"))
		return
	}
	applyChunkDefaults(&req)

	chunks, err := chunkplan.Plan(req.SegmentTitle, toPlannerSegments(req.SubSegments), req.TargetPages)
	if err != nil {
		sendError(c, http.StatusBadRequest, err)
		return
	}

	infos := make([]ChunkInfo, 0, len(chunks))
	for _, chunk := range chunks {
		infos = append(infos, ChunkInfo{
			ChunkIndex: chunk.Index,
			TopicName:  chunk.TopicName,
			Topics:     chunk.Topics,
			SourceRefs: chunk.FileRefs,
			PageCount:  chunk.PageCount,
		})
	}
	sendJSON(c, http.StatusOK, PreviewChunksResponse{
		TotalChunks: len(infos),
		TargetPages: req.TargetPages,
		Chunks:      infos,
	})
}

func applyChunkDefaults(req *AutoChunkGenerateRequest) {
	if req.Count <= 0 {
		req.Count = 10
	}
	if req.Difficulty <= 0 {
		req.Difficulty = 3
	}
	if req.Multiplier <= 0 {
		req.Multiplier = 1
	}
	if req.TargetPages <= 0 {
		req.TargetPages = 20
	}
}

func toPlannerSegments(inputs []SubSegmentInput) []chunkplan.SubSegment {
	segs := make([]chunkplan.SubSegment, len(inputs))
	for i, in := range inputs {
		segs[i] = chunkplan.SubSegment{
			Title:     in.Title,
			FileRef:   in.File,
			PageCount: in.PageCount,
			FileRefs:  in.SourceRefs,
		}
	}
	return segs
}
