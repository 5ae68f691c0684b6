package handlers

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"robot-market/internal/mocks"
	"robot-market/internal/models"
	"robot-market/internal/repositories"
)

func setupRobotRouter(handler *RobotHandler, userID string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(withUser(userID))
	r.GET("/robots", handler.ListRobots)
	r.GET("/robots/:id", handler.GetRobot)
	r.GET("/me/robots", handler.MyRobots)
	r.POST("/robots", handler.CreateRobot)
	r.PUT("/robots/:id", handler.UpdateRobot)
	r.PATCH("/robots/:id/active", handler.SetActive)
	r.DELETE("/robots/:id", handler.DeleteRobot)
	r.POST("/robots/images", handler.UploadImage)
	return r
}

func catalogFixture() []models.Robot {
	base := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	return []models.Robot{
		{ID: "r1", Title: "Scalper", Description: "fast", Price: 100, Rating: 4.5, Features: pq.StringArray{"scalping", "mt5"}, CreatedAt: base},
		{ID: "r2", Title: "Trend Rider", Description: "slow and steady", Price: 300, Rating: 3, Features: pq.StringArray{"trend"}, CreatedAt: base.Add(time.Hour)},
		{ID: "r3", Title: "Grid Bot", Description: "grid", Price: 900, Rating: 5, Features: pq.StringArray{"grid", "scalping"}, CreatedAt: base.Add(2 * time.Hour)},
	}
}

func TestListRobotsAppliesFilterAndReportsAllTags(t *testing.T) {
	robotRepo := new(mocks.RobotRepositoryMock)
	router := setupRobotRouter(NewRobotHandler(robotRepo, nil, nil, nil, 0), "")

	robotRepo.On("ListActive", mock.Anything).Return(catalogFixture(), nil).Once()

	rec := serve(router, http.MethodGet, "/robots?tags=scalping&sort=price-asc", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Robots  []models.RobotCard `json:"robots"`
		AllTags []string           `json:"all_tags"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	// r3 is above the default max price.
	require.Len(t, resp.Robots, 1)
	assert.Equal(t, "r1", resp.Robots[0].ID)
	assert.Equal(t, []string{"scalping", "mt5", "trend", "grid"}, resp.AllTags)
	robotRepo.AssertExpectations(t)
}

func TestListRobotsDefaultsToNewestFirst(t *testing.T) {
	robotRepo := new(mocks.RobotRepositoryMock)
	router := setupRobotRouter(NewRobotHandler(robotRepo, nil, nil, nil, 0), "")

	robotRepo.On("ListActive", mock.Anything).Return(catalogFixture(), nil).Once()

	rec := serve(router, http.MethodGet, "/robots?max_price=1000", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Robots []models.RobotCard `json:"robots"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.Len(t, resp.Robots, 3)
	assert.Equal(t, "r3", resp.Robots[0].ID)
	assert.Equal(t, "r1", resp.Robots[2].ID)
}

func TestListRobotsRejectsBadNumbers(t *testing.T) {
	robotRepo := new(mocks.RobotRepositoryMock)
	router := setupRobotRouter(NewRobotHandler(robotRepo, nil, nil, nil, 0), "")

	rec := serve(router, http.MethodGet, "/robots?min_price=cheap", "")
	require.Equal(t, http.StatusBadRequest, rec.Code)
	robotRepo.AssertNotCalled(t, "ListActive", mock.Anything)
}

func TestGetRobotWithSeller(t *testing.T) {
	robotRepo := new(mocks.RobotRepositoryMock)
	userRepo := new(mocks.UserRepositoryMock)
	router := setupRobotRouter(NewRobotHandler(robotRepo, userRepo, nil, nil, 0), "")

	robotRepo.On("GetRobot", mock.Anything, robotID).Return(models.Robot{ID: robotID, SellerID: "s1"}, nil).Once()
	userRepo.On("GetProfile", mock.Anything, "s1").Return(models.Profile{ID: "s1", Username: "sam"}, nil).Once()

	rec := serve(router, http.MethodGet, "/robots/"+robotID, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Robot  models.Robot    `json:"robot"`
		Seller *models.Profile `json:"seller"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.NotNil(t, resp.Seller)
	assert.Equal(t, "sam", resp.Seller.Username)
}

func TestGetRobotNotFound(t *testing.T) {
	robotRepo := new(mocks.RobotRepositoryMock)
	router := setupRobotRouter(NewRobotHandler(robotRepo, nil, nil, nil, 0), "")

	robotRepo.On("GetRobot", mock.Anything, missingID).Return(nil, repositories.ErrRobotNotFound).Once()

	rec := serve(router, http.MethodGet, "/robots/"+missingID, "")
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCreateRobotNormalizesInput(t *testing.T) {
	robotRepo := new(mocks.RobotRepositoryMock)
	router := setupRobotRouter(NewRobotHandler(robotRepo, nil, nil, nil, 0), "seller")

	expected := models.RobotInput{
		Title:         "Scalper",
		Description:   "fast",
		Price:         120,
		Platform:      models.PlatformMT5,
		Features:      []string{"scalping"},
		Compatibility: []string{},
		Images:        []string{},
	}
	robotRepo.On("CreateRobot", mock.Anything, "seller", expected).Return(models.Robot{ID: "r9", SellerID: "seller"}, nil).Once()

	body := `{"title":" Scalper ","description":"fast","price":120,"platform":"MT5","features":["scalping","  "]}`
	rec := serve(router, http.MethodPost, "/robots", body)
	require.Equal(t, http.StatusCreated, rec.Code)
	robotRepo.AssertExpectations(t)
}

func TestCreateRobotValidation(t *testing.T) {
	robotRepo := new(mocks.RobotRepositoryMock)
	router := setupRobotRouter(NewRobotHandler(robotRepo, nil, nil, nil, 0), "seller")

	rec := serve(router, http.MethodPost, "/robots", `{"title":"","description":"x","price":1,"platform":"mt4"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = serve(router, http.MethodPost, "/robots", `{"title":"a","description":"x","price":-1,"platform":"mt4"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = serve(router, http.MethodPost, "/robots", `{"title":"a","description":"x","price":1,"platform":"amiga"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	robotRepo.AssertNotCalled(t, "CreateRobot", mock.Anything, mock.Anything, mock.Anything)
}

func TestSetActiveTogglesWithoutBody(t *testing.T) {
	robotRepo := new(mocks.RobotRepositoryMock)
	router := setupRobotRouter(NewRobotHandler(robotRepo, nil, nil, nil, 0), "seller")

	robotRepo.On("GetRobot", mock.Anything, robotID).Return(models.Robot{ID: robotID, SellerID: "seller", Active: true}, nil).Once()
	robotRepo.On("SetActive", mock.Anything, robotID, "seller", false).Return(models.Robot{ID: robotID, SellerID: "seller"}, nil).Once()

	rec := serve(router, http.MethodPatch, "/robots/"+robotID+"/active", "")
	require.Equal(t, http.StatusOK, rec.Code)
	robotRepo.AssertExpectations(t)
}

func TestSetActiveExplicitValue(t *testing.T) {
	robotRepo := new(mocks.RobotRepositoryMock)
	router := setupRobotRouter(NewRobotHandler(robotRepo, nil, nil, nil, 0), "seller")

	robotRepo.On("SetActive", mock.Anything, robotID, "seller", true).Return(models.Robot{ID: robotID, Active: true}, nil).Once()

	rec := serve(router, http.MethodPatch, "/robots/"+robotID+"/active", `{"active":true}`)
	require.Equal(t, http.StatusOK, rec.Code)
	robotRepo.AssertNotCalled(t, "GetRobot", mock.Anything, mock.Anything)
}

func TestSetActiveForeignListing(t *testing.T) {
	robotRepo := new(mocks.RobotRepositoryMock)
	router := setupRobotRouter(NewRobotHandler(robotRepo, nil, nil, nil, 0), "seller")

	robotRepo.On("GetRobot", mock.Anything, robotID).Return(models.Robot{ID: robotID, SellerID: "other"}, nil).Once()

	rec := serve(router, http.MethodPatch, "/robots/"+robotID+"/active", "")
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDeleteRobot(t *testing.T) {
	robotRepo := new(mocks.RobotRepositoryMock)
	router := setupRobotRouter(NewRobotHandler(robotRepo, nil, nil, nil, 0), "seller")

	robotRepo.On("DeleteRobot", mock.Anything, robotID, "seller").Return(nil).Once()
	robotRepo.On("DeleteRobot", mock.Anything, otherRobotID, "seller").Return(repositories.ErrRobotNotFound).Once()

	assert.Equal(t, http.StatusNoContent, serve(router, http.MethodDelete, "/robots/"+robotID, "").Code)
	assert.Equal(t, http.StatusNotFound, serve(router, http.MethodDelete, "/robots/"+otherRobotID, "").Code)
}

func TestSetActiveReadsChunkedBody(t *testing.T) {
	robotRepo := new(mocks.RobotRepositoryMock)
	router := setupRobotRouter(NewRobotHandler(robotRepo, nil, nil, nil, 0), "seller")

	robotRepo.On("SetActive", mock.Anything, robotID, "seller", false).Return(models.Robot{ID: robotID}, nil).Once()

	req := httptest.NewRequest(http.MethodPatch, "/robots/"+robotID+"/active", strings.NewReader(`{"active":false}`))
	req.Header.Set("Content-Type", "application/json")
	req.ContentLength = -1
	req.TransferEncoding = []string{"chunked"}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	robotRepo.AssertNotCalled(t, "GetRobot", mock.Anything, mock.Anything)
	robotRepo.AssertExpectations(t)
}

func TestSetActiveRejectsMalformedBody(t *testing.T) {
	robotRepo := new(mocks.RobotRepositoryMock)
	router := setupRobotRouter(NewRobotHandler(robotRepo, nil, nil, nil, 0), "seller")

	rec := serve(router, http.MethodPatch, "/robots/"+robotID+"/active", `{"active":`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	robotRepo.AssertNotCalled(t, "SetActive", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestRobotRoutesRejectNonUUIDIDs(t *testing.T) {
	robotRepo := new(mocks.RobotRepositoryMock)
	router := setupRobotRouter(NewRobotHandler(robotRepo, nil, nil, nil, 0), "seller")

	assert.Equal(t, http.StatusNotFound, serve(router, http.MethodGet, "/robots/abc", "").Code)
	assert.Equal(t, http.StatusNotFound, serve(router, http.MethodPut, "/robots/abc", `{"title":"a","description":"x","price":1,"platform":"mt4"}`).Code)
	assert.Equal(t, http.StatusNotFound, serve(router, http.MethodPatch, "/robots/abc/active", `{"active":true}`).Code)
	assert.Equal(t, http.StatusNotFound, serve(router, http.MethodDelete, "/robots/abc", "").Code)
	robotRepo.AssertExpectations(t)
}

func imageRequest(t *testing.T, contentType string, data []byte) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", `form-data; name="image"; filename="bot.png"`)
	header.Set("Content-Type", contentType)
	part, err := w.CreatePart(header)
	require.NoError(t, err)
	_, err = part.Write(data)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, "/robots/images", &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req
}

func TestUploadImageStoresUnderSellerPrefix(t *testing.T) {
	uploader := new(mocks.UploaderMock)
	router := setupRobotRouter(NewRobotHandler(nil, nil, uploader, nil, 1<<20), "seller")

	uploader.On("Upload", mock.Anything, mock.MatchedBy(func(key string) bool {
		return strings.HasPrefix(key, "robots/seller/") && strings.HasSuffix(key, ".png")
	}), mock.Anything, int64(4), "image/png").Return("https://cdn.example/robots/seller/x.png", nil).Once()

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, imageRequest(t, "image/png", []byte("\x89PNG")))
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Contains(t, rec.Body.String(), "https://cdn.example/robots/seller/x.png")
	uploader.AssertExpectations(t)
}

func TestUploadImageRejections(t *testing.T) {
	router := setupRobotRouter(NewRobotHandler(nil, nil, nil, nil, 8), "seller")

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, imageRequest(t, "application/pdf", []byte("%PDF")))
	assert.Equal(t, http.StatusUnsupportedMediaType, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, imageRequest(t, "image/png", bytes.Repeat([]byte{1}, 64)))
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)

	// Without object storage configured the noop uploader answers 503.
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, imageRequest(t, "image/png", []byte("tiny")))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestUploadImageBackendFailure(t *testing.T) {
	uploader := new(mocks.UploaderMock)
	router := setupRobotRouter(NewRobotHandler(nil, nil, uploader, nil, 0), "seller")

	uploader.On("Upload", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return("", assert.AnError).Once()

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, imageRequest(t, "image/jpeg", []byte("jpeg")))
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}
