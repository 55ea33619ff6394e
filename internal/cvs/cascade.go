package cvs

import (
	"context"
	"encoding/json"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"recruitflow/internal/candidates"
	"recruitflow/internal/common/logger"
	"recruitflow/internal/common/metrics"
	"recruitflow/internal/common/validation"
	"recruitflow/internal/lifecycle"
	"recruitflow/internal/models"
)

// fuzzyThreshold is the minimum name-similarity ratio for the medium
// confidence tiers.
const fuzzyThreshold = 0.80

// ContactExtractor pulls structured name/contact fields out of document text.
// Implemented by the scoring client's fast model.
type ContactExtractor interface {
	ExtractContact(ctx context.Context, text string) (string, error)
}

// Inbound is one received item entering the cascade, normalized by the
// webhook or poll receiver.
type Inbound struct {
	Channel    string
	SenderName string

	SenderEmail string
	SenderPhone string

	Subject string
	Caption string

	AttachmentName string
	// Extracted document text; empty when the extraction collaborator had
	// nothing to offer. Only the content tier reads it.
	AttachmentText string
	// Stored location of the raw file.
	FilePath string

	Raw []byte
}

// MatchResult reports which tier attributed the item and what it attached to.
type MatchResult struct {
	Method       models.MatchMethod
	NeedsReview  bool
	Applications []*models.Application
	// Set only when no tier matched.
	Unmatched *models.UnmatchedInbound
}

// Matched reports whether any tier attributed the item.
func (r *MatchResult) Matched() bool {
	return len(r.Applications) > 0
}

// Matcher runs the six-tier cascade. Tiers are evaluated in order and the
// first tier that both identifies a candidate AND finds at least one awaiting
// application wins; a candidate with nothing awaiting falls through.
type Matcher struct {
	cands     *candidates.Store
	apps      *lifecycle.Store
	machine   *lifecycle.Machine
	store     *Store
	extractor ContactExtractor
	logger    logger.Logger
}

func NewMatcher(
	cands *candidates.Store,
	apps *lifecycle.Store,
	machine *lifecycle.Machine,
	store *Store,
	extractor ContactExtractor,
	log logger.Logger,
) *Matcher {
	return &Matcher{
		cands:     cands,
		apps:      apps,
		machine:   machine,
		store:     store,
		extractor: extractor,
		logger:    log.WithFields(map[string]interface{}{"component": "matching-cascade"}),
	}
}

// Match attributes one inbound item. An unmatched outcome is not an error:
// it produces an UnmatchedInbound record and a clean result.
func (m *Matcher) Match(ctx context.Context, in *Inbound) (*MatchResult, error) {
	// Tier 1: exact email.
	if in.SenderEmail != "" {
		cand, err := m.cands.FindByEmail(ctx, in.SenderEmail)
		if err != nil {
			return nil, err
		}
		if result, err := m.attachToCandidate(ctx, in, cand, models.MatchExactEmail, false); err != nil || result != nil {
			return result, err
		}
	}

	// Tier 2: exact phone, digits-only suffix comparison.
	if in.SenderPhone != "" {
		cand, err := m.cands.FindByPhone(ctx, in.SenderPhone)
		if err != nil {
			return nil, err
		}
		if result, err := m.attachToCandidate(ctx, in, cand, models.MatchExactPhone, false); err != nil || result != nil {
			return result, err
		}
	}

	// Tier 3: reference token in subject or caption.
	if appID, ok := extractReferenceToken(in.Subject + " " + in.Caption); ok {
		if result, err := m.attachByReference(ctx, in, appID); err != nil || result != nil {
			return result, err
		}
	}

	// Tiers 4 and 5 need the awaiting pool.
	pool, err := m.cands.ListWithAwaitingApplications(ctx)
	if err != nil {
		return nil, err
	}

	// Tier 4: fuzzy sender display name.
	if in.SenderName != "" {
		if cand := bestFuzzyMatch(in.SenderName, pool); cand != nil {
			if result, err := m.attachToCandidate(ctx, in, cand, models.MatchFuzzyName, true); err != nil || result != nil {
				return result, err
			}
		}
	}

	// Tier 5: contact fields extracted from the document content.
	if in.AttachmentText != "" && m.extractor != nil {
		cand, err := m.matchByContent(ctx, in, pool)
		if err != nil {
			m.logger.WithError(err).Warn("content extraction tier failed, continuing to unmatched", map[string]interface{}{
				"attachment": in.AttachmentName,
			})
		} else if result, attachErr := m.attachToCandidate(ctx, in, cand, models.MatchCVContent, true); attachErr != nil || result != nil {
			return result, attachErr
		}
	}

	// Tier 6: no match. Expected outcome, not an error.
	unmatched := &models.UnmatchedInbound{
		Channel:        in.Channel,
		Sender:         senderLabel(in),
		Subject:        in.Subject,
		BodySnippet:    snippet(in.Caption, 500),
		AttachmentName: in.AttachmentName,
		RawPayload:     in.Raw,
		FilePath:       in.FilePath,
	}
	if err := m.store.InsertUnmatched(ctx, unmatched); err != nil {
		return nil, err
	}
	metrics.CVUnmatched.Inc()
	m.logger.Info("inbound item unmatched, held for manual triage", map[string]interface{}{
		"channel": in.Channel,
		"sender":  unmatched.Sender,
	})
	return &MatchResult{Unmatched: unmatched}, nil
}

// attachToCandidate applies the multi-instance rule: the document attaches to
// every awaiting application the candidate holds, and each advances
// independently. Returns nil, nil when the candidate is nil or has nothing
// awaiting, letting the caller fall through to the next tier.
func (m *Matcher) attachToCandidate(ctx context.Context, in *Inbound, cand *models.Candidate, method models.MatchMethod, needsReview bool) (*MatchResult, error) {
	if cand == nil {
		return nil, nil
	}
	apps, err := m.apps.ListAwaitingByCandidate(ctx, cand.ID)
	if err != nil {
		return nil, err
	}
	if len(apps) == 0 {
		m.logger.Debug("candidate matched but holds no awaiting application, falling through", map[string]interface{}{
			"candidate_id": cand.ID,
			"method":       string(method),
		})
		return nil, nil
	}
	return m.attach(ctx, in, &cand.ID, apps, method, needsReview)
}

// attachByReference handles the token tier: the token names one application
// directly, so the multi-instance rule does not apply.
func (m *Matcher) attachByReference(ctx context.Context, in *Inbound, appID int64) (*MatchResult, error) {
	app, err := m.apps.Get(ctx, appID)
	if err != nil {
		// Token pointing at nothing is treated as no match for this tier.
		m.logger.Warn("reference token does not resolve to an application", map[string]interface{}{
			"application_id": appID,
		})
		return nil, nil
	}
	if !isAwaiting(app.Status) {
		m.logger.Debug("referenced application is not awaiting a document, falling through", map[string]interface{}{
			"application_id": appID,
			"status":         string(app.Status),
		})
		return nil, nil
	}
	return m.attach(ctx, in, &app.CandidateID, []*models.Application{app}, models.MatchSubjectID, false)
}

// attach records one upload row per application and advances each one. A
// failing application is logged and skipped; the others still advance.
func (m *Matcher) attach(ctx context.Context, in *Inbound, candidateID *int64, apps []*models.Application, method models.MatchMethod, needsReview bool) (*MatchResult, error) {
	result := &MatchResult{Method: method, NeedsReview: needsReview}
	for _, app := range apps {
		upload := &models.CVUpload{
			CandidateID:   candidateID,
			ApplicationID: app.ID,
			FileName:      in.AttachmentName,
			FilePath:      in.FilePath,
			Source:        sourceForChannel(in.Channel),
			MatchMethod:   method,
			NeedsReview:   needsReview,
		}
		if err := m.store.InsertUpload(ctx, upload); err != nil {
			m.logger.WithError(err).Error("cv upload insert failed", map[string]interface{}{
				"application_id": app.ID,
			})
			continue
		}

		now := upload.ReceivedAt
		updated, err := m.machine.ApplyTransition(ctx, app.ID, lifecycle.EventDocumentReceived, lifecycle.Payload{
			Actor:        "matching-cascade",
			Note:         "document attached via " + string(method),
			CVReceivedAt: &now,
		})
		if err != nil {
			m.logger.WithError(err).Error("document-received transition failed", map[string]interface{}{
				"application_id": app.ID,
			})
			continue
		}
		result.Applications = append(result.Applications, updated)
	}

	if len(result.Applications) == 0 {
		// Every application failed to advance; surface the item for triage
		// instead of silently losing it.
		return nil, nil
	}

	metrics.CVMatches.WithLabelValues(string(method)).Inc()
	m.logger.Info("inbound document attached", map[string]interface{}{
		"method":       string(method),
		"applications": len(result.Applications),
		"needs_review": needsReview,
	})
	return result, nil
}

// matchByContent runs the extraction service over the document text and
// matches the returned fields within the awaiting pool only.
func (m *Matcher) matchByContent(ctx context.Context, in *Inbound, pool []*models.Candidate) (*models.Candidate, error) {
	raw, err := m.extractor.ExtractContact(ctx, in.AttachmentText)
	if err != nil {
		return nil, err
	}

	var fields struct {
		FullName string `json:"full_name"`
		Email    string `json:"email"`
		Phone    string `json:"phone"`
	}
	cleaned := strings.TrimSpace(raw)
	if start := strings.Index(cleaned, "{"); start >= 0 {
		if end := strings.LastIndex(cleaned, "}"); end > start {
			cleaned = cleaned[start : end+1]
		}
	}
	if err := json.Unmarshal([]byte(cleaned), &fields); err != nil {
		return nil, err
	}

	if fields.Email != "" {
		normalized := validation.NormalizeEmail(fields.Email)
		for _, cand := range pool {
			if validation.NormalizeEmail(cand.Email) == normalized {
				return cand, nil
			}
		}
	}
	if fields.Phone != "" {
		for _, cand := range pool {
			if validation.PhonesMatch(cand.Phone, fields.Phone) || validation.PhonesMatch(cand.ChatNumber, fields.Phone) {
				return cand, nil
			}
		}
	}
	if fields.FullName != "" {
		return bestFuzzyMatch(fields.FullName, pool), nil
	}
	return nil, nil
}

// bestFuzzyMatch returns the pool candidate whose name best matches, when the
// best score clears the threshold and is unambiguous. A tie between two
// candidates disqualifies the tier.
func bestFuzzyMatch(name string, pool []*models.Candidate) *models.Candidate {
	var best *models.Candidate
	bestScore := 0.0
	tied := false
	for _, cand := range pool {
		score := NameRatio(name, cand.FullName)
		switch {
		case score > bestScore:
			best, bestScore, tied = cand, score, false
		case score == bestScore && score > 0:
			tied = true
		}
	}
	if best == nil || bestScore < fuzzyThreshold || tied {
		return nil
	}
	return best
}

// referencePatterns cover the token forms candidates actually send back:
// "App #42", "Application ID: 123", "Ref 456", "#789".
var referencePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\bapp(?:lication)?\s*(?:id)?\s*[:#]?\s*(\d+)`),
	regexp.MustCompile(`(?i)\bref(?:erence)?\s*[:#]?\s*(\d+)`),
	regexp.MustCompile(`#(\d+)`),
}

func extractReferenceToken(text string) (int64, bool) {
	for _, pattern := range referencePatterns {
		if match := pattern.FindStringSubmatch(text); match != nil {
			id, err := strconv.ParseInt(match[1], 10, 64)
			if err == nil && id > 0 {
				return id, true
			}
		}
	}
	return 0, false
}

func isAwaiting(status models.ApplicationStatus) bool {
	for _, st := range models.AwaitingCVStatuses {
		if st == status {
			return true
		}
	}
	return false
}

func sourceForChannel(channel string) models.CVSource {
	switch channel {
	case string(models.ChannelChat):
		return models.CVSourceChatMedia
	case "manual":
		return models.CVSourceManualUpload
	default:
		return models.CVSourceEmailAttachment
	}
}

func senderLabel(in *Inbound) string {
	switch {
	case in.SenderEmail != "":
		return in.SenderEmail
	case in.SenderPhone != "":
		return in.SenderPhone
	default:
		return in.SenderName
	}
}

// snippet truncates on a rune boundary so a multi-byte caption never stores
// invalid UTF-8.
func snippet(s string, max int) string {
	if len(s) <= max {
		return s
	}
	for max > 0 && !utf8.RuneStart(s[max]) {
		max--
	}
	return s[:max]
}
