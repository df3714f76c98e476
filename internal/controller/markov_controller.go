package controller

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"markov-go/internal/service"
	"markov-go/internal/service/chain"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type MarkovController struct {
	markovService *service.MarkovService
	logger        *zap.Logger
}

func NewMarkovController(markovService *service.MarkovService, logger *zap.Logger) *MarkovController {
	return &MarkovController{
		markovService: markovService,
		logger:        logger,
	}
}

type GenerateTextRequest struct {
	MaxWords int    `json:"max_words" binding:"min=0"`
	Seed     *int64 `json:"seed" binding:"omitempty,min=-1"`
	Prompt   string `json:"prompt"`
	Join     bool   `json:"join"` // Also return the tokens joined by single spaces
}

// Context keys read by handler.LoggerMiddleware
const (
	RunIDKey      = "run_id"
	StopReasonKey = "stop_reason"
)

type GenerateTextResponse struct {
	*service.GenerateResult
	Text string `json:"text,omitempty"`
}

// Generate handles POST /api/v1/generate. An empty body uses the configured
// defaults.
func (mc *MarkovController) Generate(c *gin.Context) {
	var request GenerateTextRequest
	if err := c.ShouldBindJSON(&request); err != nil && !errors.Is(err, io.EOF) {
		mc.logger.Error("Invalid request payload", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request payload",
			"details": err.Error(),
		})
		return
	}

	result, err := mc.markovService.Generate(c.Request.Context(), service.GenerateRequest{
		MaxWords: request.MaxWords,
		Seed:     request.Seed,
		Prompt:   request.Prompt,
	})
	if err != nil {
		mc.logger.Error("Failed to generate text", zap.Error(err))
		c.JSON(statusFor(err), gin.H{
			"error":   "Failed to generate text",
			"details": err.Error(),
		})
		return
	}

	c.Set(RunIDKey, result.RunID)
	c.Set(StopReasonKey, string(result.StopReason))

	response := GenerateTextResponse{GenerateResult: result}
	if request.Join {
		response.Text = strings.Join(result.Tokens, " ")
	}
	c.JSON(http.StatusOK, response)
}

// Stats handles GET /api/v1/stats
func (mc *MarkovController) Stats(c *gin.Context) {
	stats, err := mc.markovService.Stats()
	if err != nil {
		c.JSON(statusFor(err), gin.H{
			"error":   "Failed to get model stats",
			"details": err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, stats)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, service.ErrNotTrained), errors.Is(err, chain.ErrModelClosed):
		return http.StatusServiceUnavailable
	case errors.Is(err, chain.ErrUnknownContext):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}
