package messaging

import (
	"context"
	"fmt"
	"time"

	"recruitflow/internal/common/config"
	apperrors "recruitflow/internal/common/errors"
	"recruitflow/internal/common/logger"
	"recruitflow/internal/common/metrics"
	"recruitflow/internal/models"
	"recruitflow/internal/positions"
)

// EmailSender is the SES wrapper surface the service needs.
type EmailSender interface {
	SendSimpleEmail(ctx context.Context, from, to, subject, body string) (string, error)
}

// ChatSender is the chat provider surface the service needs.
type ChatSender interface {
	SendText(ctx context.Context, to, text string) (string, error)
}

// Service sends document requests and follow-ups. Every send attempt, accepted
// or refused, leaves one outbound_messages row; the follow-up sweep keys off
// those rows, so a failed send naturally retries on the next interval.
type Service struct {
	store     *Store
	email     EmailSender
	chat      ChatSender
	positions *positions.Store
	cfg       config.MessagingConfig
	logger    logger.Logger
}

func NewService(
	store *Store,
	email EmailSender,
	chat ChatSender,
	positionStore *positions.Store,
	cfg config.MessagingConfig,
	log logger.Logger,
) *Service {
	return &Service{
		store:     store,
		email:     email,
		chat:      chat,
		positions: positionStore,
		cfg:       cfg,
		logger:    log.WithFields(map[string]interface{}{"component": "messaging"}),
	}
}

// SendDocumentRequest delivers the post-verdict CV request. Qualified
// candidates get it over every reachable channel; rejected candidates get a
// single courtesy message and are never contacted again.
func (s *Service) SendDocumentRequest(ctx context.Context, app *models.Application, cand *models.Candidate, rejected bool) error {
	pos, err := s.positions.GetByID(ctx, app.PositionID)
	if err != nil {
		return err
	}

	msgType := models.MessageCVRequest
	if rejected {
		msgType = models.MessageCVRequestRejected
	}

	channels := s.reachableChannels(cand)
	if len(channels) == 0 {
		return fmt.Errorf("candidate %d has no reachable channel", cand.ID)
	}
	if rejected {
		channels = channels[:1]
	}

	return s.send(ctx, app, cand, pos, msgType, channels)
}

// SendFollowUp delivers follow-up number step (1 or 2) on the qualified track.
func (s *Service) SendFollowUp(ctx context.Context, app *models.Application, cand *models.Candidate, step int) error {
	pos, err := s.positions.GetByID(ctx, app.PositionID)
	if err != nil {
		return err
	}

	var msgType models.MessageType
	switch step {
	case 1:
		msgType = models.MessageCVFollowup1
	case 2:
		msgType = models.MessageCVFollowup2
	default:
		return fmt.Errorf("follow-up step %d out of range", step)
	}

	channels := s.reachableChannels(cand)
	if len(channels) == 0 {
		return fmt.Errorf("candidate %d has no reachable channel", cand.ID)
	}
	return s.send(ctx, app, cand, pos, msgType, channels)
}

// send fans one message out over the given channels. Each channel is recorded
// independently; the call fails only when every channel failed.
func (s *Service) send(ctx context.Context, app *models.Application, cand *models.Candidate, pos *models.Position, msgType models.MessageType, channels []models.MessageChannel) error {
	body := bodyFor(msgType, cand, pos, app)
	subject := subjectFor(msgType, pos, app)

	delivered := 0
	var lastErr error
	for _, channel := range channels {
		externalID, err := s.deliver(ctx, channel, cand, subject, body)

		msg := &models.Message{
			ApplicationID: app.ID,
			Channel:       channel,
			MessageType:   msgType,
			Body:          body,
		}
		if err != nil {
			msg.Status = models.MessageFailed
			msg.ErrorDetail = err.Error()
			lastErr = err
			s.logger.WithError(err).Error("outbound send failed", map[string]interface{}{
				"application_id": app.ID,
				"channel":        string(channel),
				"message_type":   string(msgType),
			})
		} else {
			now := time.Now().UTC()
			msg.Status = models.MessageSent
			msg.ExternalID = externalID
			msg.SentAt = &now
			delivered++
		}
		metrics.MessagesSent.WithLabelValues(string(channel), string(msg.Status)).Inc()

		if insertErr := s.store.Insert(ctx, msg); insertErr != nil {
			s.logger.WithError(insertErr).Error("outbound message audit insert failed", map[string]interface{}{
				"application_id": app.ID,
				"channel":        string(channel),
			})
		}
	}

	if delivered == 0 {
		return apperrors.NewMessageSendFailedError(channelList(channels), lastErr)
	}
	s.logger.Info("outbound message sent", map[string]interface{}{
		"application_id": app.ID,
		"message_type":   string(msgType),
		"channels":       delivered,
	})
	return nil
}

func (s *Service) deliver(ctx context.Context, channel models.MessageChannel, cand *models.Candidate, subject, body string) (string, error) {
	switch channel {
	case models.ChannelEmail:
		return s.email.SendSimpleEmail(ctx, s.cfg.Email.FromEmail, cand.Email, subject, body)
	case models.ChannelChat:
		return s.chat.SendText(ctx, chatDestination(cand), body)
	default:
		return "", fmt.Errorf("unknown channel %q", channel)
	}
}

// reachableChannels orders channels by reliability for this candidate: email
// first when the address exists and the channel is enabled, then chat.
func (s *Service) reachableChannels(cand *models.Candidate) []models.MessageChannel {
	var out []models.MessageChannel
	if s.cfg.Email.Enabled && s.email != nil && cand.Email != "" {
		out = append(out, models.ChannelEmail)
	}
	if s.chat != nil && chatDestination(cand) != "" {
		out = append(out, models.ChannelChat)
	}
	return out
}

func chatDestination(cand *models.Candidate) string {
	if cand.ChatNumber != "" {
		return cand.ChatNumber
	}
	return cand.Phone
}

func channelList(channels []models.MessageChannel) string {
	out := ""
	for i, c := range channels {
		if i > 0 {
			out += ","
		}
		out += string(c)
	}
	return out
}
