package handlers_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Brownie44l1/plantid/internal/classify"
	"github.com/Brownie44l1/plantid/internal/handlers"
	"github.com/Brownie44l1/plantid/internal/model"
	"github.com/Brownie44l1/plantid/internal/preprocess"
	"github.com/Brownie44l1/plantid/internal/rank"
)

// mockClassifier implements handlers.Classifier.
type mockClassifier struct {
	ClassifyFunc func(ctx context.Context, image io.Reader) (rank.Prediction, error)
	state        classify.State
}

func (m *mockClassifier) Classify(ctx context.Context, image io.Reader) (rank.Prediction, error) {
	return m.ClassifyFunc(ctx, image)
}

func (m *mockClassifier) State() classify.State { return m.state }

func createMultipartRequest(t *testing.T, fieldName, fileName string, content []byte) *http.Request {
	t.Helper()

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile(fieldName, fileName)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	req, err := http.NewRequest(http.MethodPost, "/predict", body)
	require.NoError(t, err)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return req
}

func newRouter(c handlers.Classifier) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	handlers.NewHandler(c, 0).Register(r)
	return r
}

func TestHandler_Predict(t *testing.T) {
	tests := []struct {
		name           string
		field          string
		mockFunc       func(ctx context.Context, image io.Reader) (rank.Prediction, error)
		expectedStatus int
		expectedBody   string
	}{
		{
			name:  "success",
			field: "image",
			mockFunc: func(ctx context.Context, image io.Reader) (rank.Prediction, error) {
				data, err := io.ReadAll(image)
				if err != nil || string(data) != "fake-image" {
					return rank.Prediction{}, fmt.Errorf("unexpected upload %q", data)
				}
				return rank.Prediction{Label: "Rose", Probability: 0.7}, nil
			},
			expectedStatus: http.StatusOK,
			expectedBody:   `{"species":"Rose","label":"Rose","probability":0.7}`,
		},
		{
			name:           "missing image field",
			field:          "photo",
			expectedStatus: http.StatusBadRequest,
			expectedBody:   `{"error":"No image file provided. Use 'image' as the form field name.","error_kind":"preprocess"}`,
		},
		{
			name:  "undecodable image",
			field: "image",
			mockFunc: func(ctx context.Context, image io.Reader) (rank.Prediction, error) {
				return rank.Prediction{}, fmt.Errorf("%w: decode", preprocess.ErrPreprocess)
			},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:  "busy",
			field: "image",
			mockFunc: func(ctx context.Context, image io.Reader) (rank.Prediction, error) {
				return rank.Prediction{}, classify.ErrNotReady
			},
			expectedStatus: http.StatusConflict,
		},
		{
			name:  "model unavailable",
			field: "image",
			mockFunc: func(ctx context.Context, image io.Reader) (rank.Prediction, error) {
				return rank.Prediction{}, model.ErrModelLoad
			},
			expectedStatus: http.StatusServiceUnavailable,
		},
		{
			name:  "inference failure",
			field: "image",
			mockFunc: func(ctx context.Context, image io.Reader) (rank.Prediction, error) {
				return rank.Prediction{}, model.ErrInference
			},
			expectedStatus: http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := &mockClassifier{ClassifyFunc: tt.mockFunc}
			if mock.ClassifyFunc == nil {
				mock.ClassifyFunc = func(ctx context.Context, image io.Reader) (rank.Prediction, error) {
					t.Fatal("Classify should not be called")
					return rank.Prediction{}, nil
				}
			}

			w := httptest.NewRecorder()
			newRouter(mock).ServeHTTP(w, createMultipartRequest(t, tt.field, "flower.jpg", []byte("fake-image")))

			assert.Equal(t, tt.expectedStatus, w.Code)
			if tt.expectedBody != "" {
				assert.JSONEq(t, tt.expectedBody, w.Body.String())
			}
		})
	}
}

func TestHandler_PredictAfterFailedModelLoad(t *testing.T) {
	store := model.NewStore(model.LoaderFunc(func(ctx context.Context) (*model.Handle, error) {
		return nil, errors.New("metadata.json: no such file")
	}))
	controller := classify.NewController(store, model.NewEngine())
	require.ErrorIs(t, controller.Start(context.Background()), model.ErrModelLoad)

	w := httptest.NewRecorder()
	newRouter(controller).ServeHTTP(w, createMultipartRequest(t, "image", "flower.jpg", []byte("fake-image")))

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.JSONEq(t,
		fmt.Sprintf(`{"error":%q,"error_kind":"model_load"}`, classify.KindModelLoad.Message()),
		w.Body.String())
	assert.Equal(t, classify.PhaseFailed, controller.State().Phase)
}

func TestHandler_State(t *testing.T) {
	mock := &mockClassifier{state: classify.State{
		Phase:      classify.PhaseSuccess,
		Prediction: &rank.Prediction{Label: "Tulip", Probability: 0.9},
	}}

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/state", nil)
	newRouter(mock).ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"phase":"success","prediction":{"label":"Tulip","probability":0.9}}`, w.Body.String())

	mock.state = classify.State{Phase: classify.PhaseFailed, Kind: classify.KindPreprocess}
	w = httptest.NewRecorder()
	newRouter(mock).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/state", nil))
	assert.JSONEq(t,
		fmt.Sprintf(`{"phase":"failed","error_kind":"preprocess","message":%q}`, classify.KindPreprocess.Message()),
		w.Body.String())
}

func TestHandler_Health(t *testing.T) {
	w := httptest.NewRecorder()
	newRouter(&mockClassifier{}).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"healthy"}`, w.Body.String())
}
