package handlers

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"robot-market/internal/mocks"
	"robot-market/internal/models"
	"robot-market/internal/repositories"
)

func setupRatingRouter(handler *RatingHandler, userID string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(withUser(userID))
	r.GET("/robots/:id/rating", handler.GetRating)
	r.GET("/robots/:id/rating/me", handler.GetMyRating)
	r.PUT("/robots/:id/rating", handler.PutRating)
	return r
}

func TestGetRatingAverage(t *testing.T) {
	ratings := new(mocks.RatingRepositoryMock)
	router := setupRatingRouter(NewRatingHandler(ratings, nil, nil), "u1")

	ratings.On("AverageRating", mock.Anything, robotID).Return(4.25, nil).Once()

	rec := serve(router, http.MethodGet, "/robots/"+robotID+"/rating", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		RobotID string  `json:"robot_id"`
		Average float64 `json:"average"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, robotID, resp.RobotID)
	assert.InDelta(t, 4.25, resp.Average, 1e-9)
}

func TestGetMyRatingNullWhenUnrated(t *testing.T) {
	ratings := new(mocks.RatingRepositoryMock)
	router := setupRatingRouter(NewRatingHandler(ratings, nil, nil), "u1")

	ratings.On("UserRating", mock.Anything, robotID, "u1").Return(nil, repositories.ErrRatingNotFound).Once()

	rec := serve(router, http.MethodGet, "/robots/"+robotID+"/rating/me", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"rating":null}`, rec.Body.String())
}

func TestGetMyRatingExisting(t *testing.T) {
	ratings := new(mocks.RatingRepositoryMock)
	router := setupRatingRouter(NewRatingHandler(ratings, nil, nil), "u1")

	ratings.On("UserRating", mock.Anything, robotID, "u1").Return(models.RobotRating{RobotID: robotID, UserID: "u1", Rating: 4}, nil).Once()

	rec := serve(router, http.MethodGet, "/robots/"+robotID+"/rating/me", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Rating *models.RobotRating `json:"rating"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.NotNil(t, resp.Rating)
	assert.Equal(t, 4, resp.Rating.Rating)
}

func TestPutRatingUpsertsAndReturnsAverage(t *testing.T) {
	ratings := new(mocks.RatingRepositoryMock)
	robots := new(mocks.RobotRepositoryMock)
	router := setupRatingRouter(NewRatingHandler(ratings, robots, nil), "u1")

	robots.On("GetRobot", mock.Anything, robotID).Return(models.Robot{ID: robotID}, nil).Once()
	ratings.On("UpsertRating", mock.Anything, robotID, "u1", 5, "great").Return(nil).Once()
	ratings.On("AverageRating", mock.Anything, robotID).Return(4.5, nil).Once()

	rec := serve(router, http.MethodPut, "/robots/"+robotID+"/rating", `{"rating":5,"comment":" great "}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"robot_id":"`+robotID+`","average":4.5}`, rec.Body.String())
	ratings.AssertExpectations(t)
	robots.AssertExpectations(t)
}

func TestPutRatingOutOfRange(t *testing.T) {
	ratings := new(mocks.RatingRepositoryMock)
	router := setupRatingRouter(NewRatingHandler(ratings, new(mocks.RobotRepositoryMock), nil), "u1")

	for _, body := range []string{`{"rating":0}`, `{"rating":6}`, `{}`} {
		rec := serve(router, http.MethodPut, "/robots/"+robotID+"/rating", body)
		assert.Equal(t, http.StatusBadRequest, rec.Code, body)
	}
	ratings.AssertNotCalled(t, "UpsertRating", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestPutRatingUnknownRobot(t *testing.T) {
	robots := new(mocks.RobotRepositoryMock)
	router := setupRatingRouter(NewRatingHandler(new(mocks.RatingRepositoryMock), robots, nil), "u1")

	robots.On("GetRobot", mock.Anything, missingID).Return(nil, repositories.ErrRobotNotFound).Once()

	rec := serve(router, http.MethodPut, "/robots/"+missingID+"/rating", `{"rating":3}`)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRatingRoutesRejectNonUUIDIDs(t *testing.T) {
	ratings := new(mocks.RatingRepositoryMock)
	robots := new(mocks.RobotRepositoryMock)
	router := setupRatingRouter(NewRatingHandler(ratings, robots, nil), "u1")

	assert.Equal(t, http.StatusNotFound, serve(router, http.MethodGet, "/robots/abc/rating", "").Code)
	assert.Equal(t, http.StatusNotFound, serve(router, http.MethodGet, "/robots/abc/rating/me", "").Code)
	assert.Equal(t, http.StatusNotFound, serve(router, http.MethodPut, "/robots/abc/rating", `{"rating":3}`).Code)
	ratings.AssertExpectations(t)
	robots.AssertExpectations(t)
}
