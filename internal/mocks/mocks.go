package mocks

import (
	"context"
	"io"
	"time"

	"github.com/stretchr/testify/mock"

	"robot-market/internal/models"
)

type ConversationRepositoryMock struct {
	mock.Mock
}

func (m *ConversationRepositoryMock) ListForUser(ctx context.Context, userID string) ([]models.Conversation, error) {
	args := m.Called(ctx, userID)
	var list []models.Conversation
	if val := args.Get(0); val != nil {
		list = val.([]models.Conversation)
	}
	return list, args.Error(1)
}

func (m *ConversationRepositoryMock) GetConversation(ctx context.Context, conversationID string) (models.Conversation, error) {
	args := m.Called(ctx, conversationID)
	var conv models.Conversation
	if val := args.Get(0); val != nil {
		conv = val.(models.Conversation)
	}
	return conv, args.Error(1)
}

func (m *ConversationRepositoryMock) FindByTriple(ctx context.Context, buyerID, sellerID, robotID string) (models.Conversation, error) {
	args := m.Called(ctx, buyerID, sellerID, robotID)
	var conv models.Conversation
	if val := args.Get(0); val != nil {
		conv = val.(models.Conversation)
	}
	return conv, args.Error(1)
}

func (m *ConversationRepositoryMock) CreateConversation(ctx context.Context, buyerID, sellerID, robotID string) (models.Conversation, error) {
	args := m.Called(ctx, buyerID, sellerID, robotID)
	var conv models.Conversation
	if val := args.Get(0); val != nil {
		conv = val.(models.Conversation)
	}
	return conv, args.Error(1)
}

func (m *ConversationRepositoryMock) IsParticipant(ctx context.Context, conversationID string, userID string) (bool, error) {
	args := m.Called(ctx, conversationID, userID)
	return args.Bool(0), args.Error(1)
}

type MessageRepositoryMock struct {
	mock.Mock
}

func (m *MessageRepositoryMock) CreateMessage(ctx context.Context, conversationID string, senderID string, content string) (models.ConversationMessage, models.Conversation, error) {
	args := m.Called(ctx, conversationID, senderID, content)
	var msg models.ConversationMessage
	if val := args.Get(0); val != nil {
		msg = val.(models.ConversationMessage)
	}
	var conv models.Conversation
	if val := args.Get(1); val != nil {
		conv = val.(models.Conversation)
	}
	return msg, conv, args.Error(2)
}

func (m *MessageRepositoryMock) ListMessages(ctx context.Context, conversationID string) ([]models.ConversationMessage, error) {
	args := m.Called(ctx, conversationID)
	var list []models.ConversationMessage
	if val := args.Get(0); val != nil {
		list = val.([]models.ConversationMessage)
	}
	return list, args.Error(1)
}

func (m *MessageRepositoryMock) LatestMessage(ctx context.Context, conversationID string) (models.ConversationMessage, error) {
	args := m.Called(ctx, conversationID)
	var msg models.ConversationMessage
	if val := args.Get(0); val != nil {
		msg = val.(models.ConversationMessage)
	}
	return msg, args.Error(1)
}

type RobotRepositoryMock struct {
	mock.Mock
}

func (m *RobotRepositoryMock) ListActive(ctx context.Context) ([]models.Robot, error) {
	args := m.Called(ctx)
	var list []models.Robot
	if val := args.Get(0); val != nil {
		list = val.([]models.Robot)
	}
	return list, args.Error(1)
}

func (m *RobotRepositoryMock) ListBySeller(ctx context.Context, sellerID string) ([]models.Robot, error) {
	args := m.Called(ctx, sellerID)
	var list []models.Robot
	if val := args.Get(0); val != nil {
		list = val.([]models.Robot)
	}
	return list, args.Error(1)
}

func (m *RobotRepositoryMock) GetRobot(ctx context.Context, robotID string) (models.Robot, error) {
	args := m.Called(ctx, robotID)
	var robot models.Robot
	if val := args.Get(0); val != nil {
		robot = val.(models.Robot)
	}
	return robot, args.Error(1)
}

func (m *RobotRepositoryMock) CreateRobot(ctx context.Context, sellerID string, in models.RobotInput) (models.Robot, error) {
	args := m.Called(ctx, sellerID, in)
	var robot models.Robot
	if val := args.Get(0); val != nil {
		robot = val.(models.Robot)
	}
	return robot, args.Error(1)
}

func (m *RobotRepositoryMock) UpdateRobot(ctx context.Context, robotID, sellerID string, in models.RobotInput) (models.Robot, error) {
	args := m.Called(ctx, robotID, sellerID, in)
	var robot models.Robot
	if val := args.Get(0); val != nil {
		robot = val.(models.Robot)
	}
	return robot, args.Error(1)
}

func (m *RobotRepositoryMock) SetActive(ctx context.Context, robotID, sellerID string, active bool) (models.Robot, error) {
	args := m.Called(ctx, robotID, sellerID, active)
	var robot models.Robot
	if val := args.Get(0); val != nil {
		robot = val.(models.Robot)
	}
	return robot, args.Error(1)
}

func (m *RobotRepositoryMock) DeleteRobot(ctx context.Context, robotID, sellerID string) error {
	args := m.Called(ctx, robotID, sellerID)
	return args.Error(0)
}

type RatingRepositoryMock struct {
	mock.Mock
}

func (m *RatingRepositoryMock) AverageRating(ctx context.Context, robotID string) (float64, error) {
	args := m.Called(ctx, robotID)
	return args.Get(0).(float64), args.Error(1)
}

func (m *RatingRepositoryMock) UserRating(ctx context.Context, robotID, userID string) (models.RobotRating, error) {
	args := m.Called(ctx, robotID, userID)
	var rating models.RobotRating
	if val := args.Get(0); val != nil {
		rating = val.(models.RobotRating)
	}
	return rating, args.Error(1)
}

func (m *RatingRepositoryMock) UpsertRating(ctx context.Context, robotID, userID string, rating int, comment string) error {
	args := m.Called(ctx, robotID, userID, rating, comment)
	return args.Error(0)
}

type UserRepositoryMock struct {
	mock.Mock
}

func (m *UserRepositoryMock) CreateUser(ctx context.Context, email, passwordHash, username string, accountType models.AccountType) (models.User, error) {
	args := m.Called(ctx, email, passwordHash, username, accountType)
	var user models.User
	if val := args.Get(0); val != nil {
		user = val.(models.User)
	}
	return user, args.Error(1)
}

func (m *UserRepositoryMock) UserByEmail(ctx context.Context, email string) (models.User, error) {
	args := m.Called(ctx, email)
	var user models.User
	if val := args.Get(0); val != nil {
		user = val.(models.User)
	}
	return user, args.Error(1)
}

func (m *UserRepositoryMock) UserByID(ctx context.Context, userID string) (models.User, error) {
	args := m.Called(ctx, userID)
	var user models.User
	if val := args.Get(0); val != nil {
		user = val.(models.User)
	}
	return user, args.Error(1)
}

func (m *UserRepositoryMock) GetProfile(ctx context.Context, userID string) (models.Profile, error) {
	args := m.Called(ctx, userID)
	var profile models.Profile
	if val := args.Get(0); val != nil {
		profile = val.(models.Profile)
	}
	return profile, args.Error(1)
}

func (m *UserRepositoryMock) CreateSession(ctx context.Context, token, userID string, expiresAt time.Time) (models.Session, error) {
	args := m.Called(ctx, token, userID, expiresAt)
	var session models.Session
	if val := args.Get(0); val != nil {
		session = val.(models.Session)
	}
	return session, args.Error(1)
}

func (m *UserRepositoryMock) SessionByToken(ctx context.Context, token string) (models.Session, error) {
	args := m.Called(ctx, token)
	var session models.Session
	if val := args.Get(0); val != nil {
		session = val.(models.Session)
	}
	return session, args.Error(1)
}

func (m *UserRepositoryMock) DeleteSession(ctx context.Context, token string) error {
	args := m.Called(ctx, token)
	return args.Error(0)
}

type UploaderMock struct {
	mock.Mock
}

func (m *UploaderMock) Upload(ctx context.Context, key string, body io.Reader, size int64, contentType string) (string, error) {
	args := m.Called(ctx, key, body, size, contentType)
	return args.String(0), args.Error(1)
}
