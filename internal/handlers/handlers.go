package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/phuslu/log"

	"github.com/Brownie44l1/plantid/internal/classify"
	"github.com/Brownie44l1/plantid/internal/rank"
)

// DefaultMaxUploadBytes caps multipart uploads at 10MB.
const DefaultMaxUploadBytes = 10 << 20

// Classifier is the subset of classify.Controller the HTTP layer uses.
type Classifier interface {
	Classify(ctx context.Context, image io.Reader) (rank.Prediction, error)
	State() classify.State
}

type Handler struct {
	classifier     Classifier
	maxUploadBytes int64
}

func NewHandler(classifier Classifier, maxUploadBytes int64) *Handler {
	if maxUploadBytes <= 0 {
		maxUploadBytes = DefaultMaxUploadBytes
	}
	return &Handler{
		classifier:     classifier,
		maxUploadBytes: maxUploadBytes,
	}
}

// PredictionResponse keeps the "species" field the upload form reads and
// adds the label and probability of the local classifier.
type PredictionResponse struct {
	Species     string  `json:"species"`
	Label       string  `json:"label"`
	Probability float32 `json:"probability"`
}

type StateResponse struct {
	classify.State
	Message string `json:"message,omitempty"`
}

type ErrorResponse struct {
	Error string        `json:"error"`
	Kind  classify.Kind `json:"error_kind"`
}

// Register mounts the routes on r.
func (h *Handler) Register(r gin.IRouter) {
	r.GET("/health", h.Health)
	r.GET("/state", h.State)
	r.POST("/predict", h.Predict)
}

func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy"})
}

func (h *Handler) State(c *gin.Context) {
	st := h.classifier.State()
	c.JSON(http.StatusOK, StateResponse{State: st, Message: st.Message()})
}

// Predict classifies the image uploaded in the multipart "image" field.
func (h *Handler) Predict(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUploadBytes)

	file, err := c.FormFile("image")
	if err != nil {
		log.Warn().Err(err).Str("remote_addr", c.ClientIP()).Msg("no image in upload")
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, ErrorResponse{Error: "Image is too large.", Kind: classify.KindPreprocess})
			return
		}
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "No image file provided. Use 'image' as the form field name.", Kind: classify.KindPreprocess})
		return
	}

	f, err := file.Open()
	if err != nil {
		log.Error().Err(err).Msg("failed to open uploaded image")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "Failed to read the uploaded image.", Kind: classify.KindPreprocess})
		return
	}
	defer func() {
		if err := f.Close(); err != nil {
			log.Warn().Err(err).Msg("failed to close uploaded image")
		}
	}()

	log.Info().Str("filename", file.Filename).Int64("size", file.Size).Msg("received upload")

	pred, err := h.classifier.Classify(c.Request.Context(), f)
	if err != nil {
		kind := classify.KindOf(err)
		c.JSON(statusFor(kind), ErrorResponse{Error: kind.Message(), Kind: kind})
		return
	}

	c.JSON(http.StatusOK, PredictionResponse{
		Species:     pred.Label,
		Label:       pred.Label,
		Probability: pred.Probability,
	})
}

func statusFor(kind classify.Kind) int {
	switch kind {
	case classify.KindPreprocess:
		return http.StatusBadRequest
	case classify.KindNotReady:
		return http.StatusConflict
	case classify.KindModelLoad:
		return http.StatusServiceUnavailable
	case classify.KindRemoteInference:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
