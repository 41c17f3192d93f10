package refresh

import (
	"context"

	"bellweaver/internal/compass"
	"bellweaver/internal/model"
)

type stubClient struct {
	user     model.Raw
	events   []model.Raw
	loginErr error
	closed   bool
}

var _ compass.Client = (*stubClient)(nil)

func (s *stubClient) Login(context.Context) (bool, error) {
	if s.loginErr != nil {
		return false, s.loginErr
	}
	return true, nil
}

func (s *stubClient) GetUserDetails(context.Context, *int) (model.Raw, error) { return s.user, nil }

func (s *stubClient) GetCalendarEvents(context.Context, compass.Date, compass.Date, int) ([]model.Raw, error) {
	return s.events, nil
}

func (s *stubClient) Close() error {
	s.closed = true
	return nil
}
