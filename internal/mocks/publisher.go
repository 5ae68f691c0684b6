package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"
)

// PublisherMock stands in for a broker publisher.
type PublisherMock struct {
	mock.Mock
}

func (m *PublisherMock) Publish(ctx context.Context, routingKey string, event any) error {
	args := m.Called(ctx, routingKey, event)
	return args.Error(0)
}

func (m *PublisherMock) Close() error {
	args := m.Called()
	return args.Error(0)
}

// ExpectPublish registers one Publish call on routingKey with any payload.
func (m *PublisherMock) ExpectPublish(routingKey string, err error) *mock.Call {
	return m.On("Publish", mock.Anything, routingKey, mock.Anything).Return(err).Once()
}

// RoutingKeys lists the routing keys of the Publish calls seen so far, in order.
func (m *PublisherMock) RoutingKeys() []string {
	var keys []string
	for _, call := range m.Calls {
		if call.Method == "Publish" {
			keys = append(keys, call.Arguments.String(1))
		}
	}
	return keys
}
