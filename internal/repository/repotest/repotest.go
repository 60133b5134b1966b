// Package repotest provides in-memory repositories for service and worker
// tests. Rows are copied on every read and write, and conditional updates
// behave like their postgres counterparts.
package repotest

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/supplierportal/notify-api/internal/model"
	"github.com/supplierportal/notify-api/internal/repository"
)

// DB holds every table. The zero value is not usable; call New.
type DB struct {
	mu sync.Mutex

	templates []*model.NotificationTemplate
	logs      []*model.NotificationLog
	sms       []*model.SMSNotification
	queue     []*model.QueueItem
	campaigns []*model.BulkNotification
	analytics []*model.NotificationAnalytics
	services  []*model.NotificationService

	users  map[uuid.UUID]model.Recipient
	apps   map[uuid.UUID]model.Recipient
	admins []model.Recipient

	failures map[string]error
}

func New() *DB {
	return &DB{
		users:    map[uuid.UUID]model.Recipient{},
		apps:     map[uuid.UUID]model.Recipient{},
		failures: map[string]error{},
	}
}

// Fail makes the named operation, such as "Queue.Create", return err until
// cleared with a nil err.
func (db *DB) Fail(op string, err error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	if err == nil {
		delete(db.failures, op)
		return
	}
	db.failures[op] = err
}

func (db *DB) failure(op string) error {
	return db.failures[op]
}

func (db *DB) AddUser(r model.Recipient) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.users[*r.UserID] = r
}

func (db *DB) AddApplication(r model.Recipient) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.apps[*r.ApplicationID] = r
}

func (db *DB) AddAdmin(r model.Recipient) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.admins = append(db.admins, r)
}

// AllLogs returns copies of every stored log in insertion order.
func (db *DB) AllLogs() []*model.NotificationLog {
	db.mu.Lock()
	defer db.mu.Unlock()
	out := make([]*model.NotificationLog, len(db.logs))
	for i, l := range db.logs {
		cp := *l
		out[i] = &cp
	}
	return out
}

// AllQueueItems returns copies of every stored queue item in insertion order.
func (db *DB) AllQueueItems() []*model.QueueItem {
	db.mu.Lock()
	defer db.mu.Unlock()
	out := make([]*model.QueueItem, len(db.queue))
	for i, q := range db.queue {
		cp := *q
		out[i] = &cp
	}
	return out
}

func (db *DB) Templates() repository.TemplateRepository   { return templateRepo{db} }
func (db *DB) Logs() repository.NotificationLogRepository { return logRepo{db} }
func (db *DB) SMS() repository.SMSRepository              { return smsRepo{db} }
func (db *DB) Queue() repository.QueueRepository          { return queueRepo{db} }
func (db *DB) Campaigns() repository.CampaignRepository   { return campaignRepo{db} }
func (db *DB) Directory() repository.RecipientDirectory   { return directory{db} }
func (db *DB) Analytics() repository.AnalyticsRepository  { return analyticsRepo{db} }
func (db *DB) Services() repository.ServiceRepository     { return serviceRepo{db} }

type templateRepo struct{ db *DB }

func (r templateRepo) Create(_ context.Context, tmpl *model.NotificationTemplate) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if err := r.db.failure("Templates.Create"); err != nil {
		return err
	}
	if tmpl.ID == uuid.Nil {
		tmpl.ID = uuid.New()
	}
	tmpl.CreatedAt = time.Now()
	tmpl.UpdatedAt = tmpl.CreatedAt
	cp := *tmpl
	r.db.templates = append(r.db.templates, &cp)
	return nil
}

func (r templateRepo) find(match func(*model.NotificationTemplate) bool) (*model.NotificationTemplate, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	for _, t := range r.db.templates {
		if match(t) {
			cp := *t
			return &cp, nil
		}
	}
	return nil, model.ErrNotFound
}

func (r templateRepo) Get(_ context.Context, id uuid.UUID) (*model.NotificationTemplate, error) {
	return r.find(func(t *model.NotificationTemplate) bool { return t.ID == id })
}

func (r templateRepo) Update(_ context.Context, tmpl *model.NotificationTemplate) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	for i, t := range r.db.templates {
		if t.ID == tmpl.ID {
			tmpl.UpdatedAt = time.Now()
			cp := *tmpl
			r.db.templates[i] = &cp
			return nil
		}
	}
	return model.ErrNotFound
}

func (r templateRepo) List(_ context.Context, activeOnly bool) ([]*model.NotificationTemplate, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	var out []*model.NotificationTemplate
	for _, t := range r.db.templates {
		if !activeOnly || t.IsActive {
			cp := *t
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (r templateRepo) GetActiveByName(_ context.Context, name string) (*model.NotificationTemplate, error) {
	return r.find(func(t *model.NotificationTemplate) bool { return t.IsActive && t.Name == name })
}

func (r templateRepo) GetActiveByType(_ context.Context, typ model.NotificationType) (*model.NotificationTemplate, error) {
	return r.find(func(t *model.NotificationTemplate) bool { return t.IsActive && t.NotificationType == typ })
}

func (r templateRepo) GetByNameOrType(_ context.Context, name string, typ model.NotificationType) (*model.NotificationTemplate, error) {
	return r.find(func(t *model.NotificationTemplate) bool { return t.Name == name || t.NotificationType == typ })
}

type logRepo struct{ db *DB }

func (r logRepo) Create(_ context.Context, log *model.NotificationLog) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if err := r.db.failure("Logs.Create"); err != nil {
		return err
	}
	if log.ID == uuid.Nil {
		log.ID = uuid.New()
	}
	log.AssignTrackingID()
	if log.Status == "" {
		log.Status = model.NotificationStatusPending
	}
	log.CreatedAt = time.Now()
	log.UpdatedAt = log.CreatedAt
	cp := *log
	r.db.logs = append(r.db.logs, &cp)
	return nil
}

func (r logRepo) find(match func(*model.NotificationLog) bool) (*model.NotificationLog, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	for _, l := range r.db.logs {
		if match(l) {
			cp := *l
			return &cp, nil
		}
	}
	return nil, model.ErrNotFound
}

func (r logRepo) Get(_ context.Context, id uuid.UUID) (*model.NotificationLog, error) {
	return r.find(func(l *model.NotificationLog) bool { return l.ID == id })
}

func (r logRepo) GetByTrackingID(_ context.Context, trackingID uuid.UUID) (*model.NotificationLog, error) {
	return r.find(func(l *model.NotificationLog) bool { return l.TrackingID == trackingID })
}

func (r logRepo) List(_ context.Context, filter model.LogFilter) ([]*model.NotificationLog, int, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	var matched []*model.NotificationLog
	search := strings.ToLower(filter.Search)
	for i := len(r.db.logs) - 1; i >= 0; i-- {
		l := r.db.logs[i]
		if filter.Status != "" && l.Status != filter.Status {
			continue
		}
		if filter.Channel != "" && l.Channel != filter.Channel {
			continue
		}
		if filter.Template != "" && l.TemplateName != filter.Template {
			continue
		}
		if search != "" && !strings.Contains(strings.ToLower(l.RecipientEmail+" "+l.RecipientName+" "+l.Subject), search) {
			continue
		}
		cp := *l
		matched = append(matched, &cp)
	}
	page := filter.Pagination.Normalize()
	start := page.Offset()
	if start > len(matched) {
		start = len(matched)
	}
	end := start + page.PageSize
	if end > len(matched) {
		end = len(matched)
	}
	return matched[start:end], len(matched), nil
}

func (r logRepo) UpdateState(_ context.Context, log *model.NotificationLog, expected model.NotificationStatus) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if err := r.db.failure("Logs.UpdateState"); err != nil {
		return err
	}
	for i, l := range r.db.logs {
		if l.ID != log.ID {
			continue
		}
		if l.Status != expected {
			return model.ErrStaleState
		}
		cp := *log
		cp.CreatedAt = l.CreatedAt
		r.db.logs[i] = &cp
		return nil
	}
	return model.ErrNotFound
}

func (r logRepo) ListRetryable(_ context.Context, now time.Time, limit int) ([]*model.NotificationLog, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	var out []*model.NotificationLog
	for _, l := range r.db.logs {
		if l.CanRetry(now) {
			cp := *l
			out = append(out, &cp)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].UpdatedAt.Before(out[j].UpdatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r logRepo) ExpirePending(_ context.Context, ids []uuid.UUID, now time.Time) ([]*model.NotificationLog, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if err := r.db.failure("Logs.ExpirePending"); err != nil {
		return nil, err
	}
	want := map[uuid.UUID]bool{}
	for _, id := range ids {
		want[id] = true
	}
	var out []*model.NotificationLog
	for _, l := range r.db.logs {
		if !want[l.ID] || l.Expire(now) != nil {
			continue
		}
		out = append(out, &model.NotificationLog{ID: l.ID, CampaignID: l.CampaignID})
	}
	return out, nil
}

func (r logRepo) DeleteByIDs(_ context.Context, ids []uuid.UUID) (int64, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	drop := map[uuid.UUID]bool{}
	for _, id := range ids {
		drop[id] = true
	}
	var n int64
	kept := r.db.logs[:0]
	for _, l := range r.db.logs {
		if drop[l.ID] {
			n++
			continue
		}
		kept = append(kept, l)
	}
	r.db.logs = kept
	return n, nil
}

func (r logRepo) DeleteBefore(_ context.Context, cutoff time.Time) (int64, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	var n int64
	kept := r.db.logs[:0]
	for _, l := range r.db.logs {
		if l.CreatedAt.Before(cutoff) {
			n++
			continue
		}
		kept = append(kept, l)
	}
	r.db.logs = kept
	return n, nil
}

func (r logRepo) CountsForDay(_ context.Context, day time.Time) ([]model.LogCounts, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if err := r.db.failure("Logs.CountsForDay"); err != nil {
		return nil, err
	}
	start := model.TruncateDay(day)
	end := start.AddDate(0, 0, 1)

	type key struct {
		channel  model.Channel
		template string
	}
	groups := map[key]*model.LogCounts{}
	var order []key
	for _, l := range r.db.logs {
		if l.CreatedAt.Before(start) || !l.CreatedAt.Before(end) {
			continue
		}
		k := key{l.Channel, l.TemplateName}
		c, ok := groups[k]
		if !ok {
			c = &model.LogCounts{Channel: l.Channel, TemplateName: l.TemplateName}
			groups[k] = c
			order = append(order, k)
		}
		c.Total++
		switch l.Status {
		case model.NotificationStatusDelivered:
			c.Delivered++
		case model.NotificationStatusOpened:
			c.Delivered++
			c.Opened++
		case model.NotificationStatusClicked:
			c.Delivered++
			c.Opened++
			c.Clicked++
		case model.NotificationStatusFailed:
			c.Failed++
		case model.NotificationStatusBounced:
			c.Bounced++
		}
		for _, s := range r.db.sms {
			if s.NotificationLogID != nil && *s.NotificationLogID == l.ID {
				c.Cost += s.Cost
			}
		}
	}
	out := make([]model.LogCounts, 0, len(order))
	for _, k := range order {
		out = append(out, *groups[k])
	}
	return out, nil
}

func (r logRepo) CountByCampaign(_ context.Context, campaignID uuid.UUID) (model.CampaignLogCounts, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	var c model.CampaignLogCounts
	for _, l := range r.db.logs {
		if l.CampaignID == nil || *l.CampaignID != campaignID {
			continue
		}
		c.Total++
		switch {
		case l.Status == model.NotificationStatusPending, l.Status == model.NotificationStatusPaused:
			c.Open++
		case l.Status == model.NotificationStatusFailed && l.RetryCount < l.MaxRetries:
			c.Open++
		}
	}
	return c, nil
}

type smsRepo struct{ db *DB }

func (r smsRepo) Create(_ context.Context, sms *model.SMSNotification) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if sms.ID == uuid.Nil {
		sms.ID = uuid.New()
	}
	if sms.Status == "" {
		sms.Status = model.SMSStatusPending
	}
	sms.CreatedAt = time.Now()
	sms.UpdatedAt = sms.CreatedAt
	cp := *sms
	r.db.sms = append(r.db.sms, &cp)
	return nil
}

func (r smsRepo) GetByLogID(_ context.Context, logID uuid.UUID) (*model.SMSNotification, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	for _, s := range r.db.sms {
		if s.NotificationLogID != nil && *s.NotificationLogID == logID {
			cp := *s
			return &cp, nil
		}
	}
	return nil, model.ErrNotFound
}

func (r smsRepo) UpdateState(_ context.Context, sms *model.SMSNotification, expected model.SMSStatus) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	for i, s := range r.db.sms {
		if s.ID != sms.ID {
			continue
		}
		if s.Status != expected {
			return model.ErrStaleState
		}
		cp := *sms
		r.db.sms[i] = &cp
		return nil
	}
	return model.ErrNotFound
}

func (r smsRepo) DeleteBefore(_ context.Context, cutoff time.Time) (int64, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	var n int64
	kept := r.db.sms[:0]
	for _, s := range r.db.sms {
		if s.CreatedAt.Before(cutoff) {
			n++
			continue
		}
		kept = append(kept, s)
	}
	r.db.sms = kept
	return n, nil
}

type queueRepo struct{ db *DB }

func (r queueRepo) Create(_ context.Context, item *model.QueueItem) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if err := r.db.failure("Queue.Create"); err != nil {
		return err
	}
	if item.ID == uuid.Nil {
		item.ID = uuid.New()
	}
	if item.Status == "" {
		item.Status = model.QueueStatusPending
	}
	if item.Priority == "" {
		item.Priority = model.PriorityNormal
	}
	item.CreatedAt = time.Now()
	item.UpdatedAt = item.CreatedAt
	if item.ScheduledAt.IsZero() {
		item.ScheduledAt = item.CreatedAt
	}
	cp := *item
	r.db.queue = append(r.db.queue, &cp)
	return nil
}

func (r queueRepo) Get(_ context.Context, id uuid.UUID) (*model.QueueItem, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	for _, q := range r.db.queue {
		if q.ID == id {
			cp := *q
			return &cp, nil
		}
	}
	return nil, model.ErrNotFound
}

func (r queueRepo) GetByLogID(_ context.Context, logID uuid.UUID) (*model.QueueItem, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	for i := len(r.db.queue) - 1; i >= 0; i-- {
		if q := r.db.queue[i]; q.NotificationLogID == logID {
			cp := *q
			return &cp, nil
		}
	}
	return nil, model.ErrNotFound
}

func (r queueRepo) List(_ context.Context, status model.QueueStatus, page model.Pagination) ([]*model.QueueItem, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	var out []*model.QueueItem
	for _, q := range r.db.queue {
		if status == "" || q.Status == status {
			cp := *q
			out = append(out, &cp)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return model.DispatchBefore(out[i], out[j]) })
	page = page.Normalize()
	start := page.Offset()
	if start > len(out) {
		start = len(out)
	}
	end := start + page.PageSize
	if end > len(out) {
		end = len(out)
	}
	return out[start:end], nil
}

func (r queueRepo) Stats(_ context.Context) (*model.QueueStats, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	stats := &model.QueueStats{}
	for _, q := range r.db.queue {
		switch q.Status {
		case model.QueueStatusPending:
			stats.Pending++
		case model.QueueStatusProcessing:
			stats.Processing++
		case model.QueueStatusCompleted:
			stats.Completed++
		case model.QueueStatusFailed:
			stats.Failed++
		case model.QueueStatusCancelled:
			stats.Cancelled++
		}
	}
	return stats, nil
}

func (r queueRepo) channelOf(logID uuid.UUID) model.Channel {
	for _, l := range r.db.logs {
		if l.ID == logID {
			return l.Channel
		}
	}
	return ""
}

func (r queueRepo) ClaimBatch(_ context.Context, workerID string, channels []model.Channel, now time.Time, limit int) ([]*model.QueueItem, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if err := r.db.failure("Queue.ClaimBatch"); err != nil {
		return nil, err
	}
	allowed := map[model.Channel]bool{}
	for _, c := range channels {
		allowed[c] = true
	}
	var due []*model.QueueItem
	for _, q := range r.db.queue {
		if q.IsDue(now) && !q.IsExpired(now) && allowed[r.channelOf(q.NotificationLogID)] {
			due = append(due, q)
		}
	}
	sort.SliceStable(due, func(i, j int) bool { return model.DispatchBefore(due[i], due[j]) })
	if len(due) > limit {
		due = due[:limit]
	}
	out := make([]*model.QueueItem, 0, len(due))
	for _, q := range due {
		if err := q.AssignToWorker(workerID, now); err != nil {
			return nil, err
		}
		cp := *q
		out = append(out, &cp)
	}
	return out, nil
}

func (r queueRepo) Claim(_ context.Context, id uuid.UUID, workerID string, now time.Time) (*model.QueueItem, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	for _, q := range r.db.queue {
		if q.ID != id {
			continue
		}
		if q.Status != model.QueueStatusPending {
			return nil, model.ErrStaleState
		}
		if err := q.AssignToWorker(workerID, now); err != nil {
			return nil, err
		}
		cp := *q
		return &cp, nil
	}
	return nil, model.ErrNotFound
}

func (r queueRepo) UpdateState(_ context.Context, item *model.QueueItem, expected model.QueueStatus) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	for i, q := range r.db.queue {
		if q.ID != item.ID {
			continue
		}
		if q.Status != expected {
			return model.ErrStaleState
		}
		cp := *item
		cp.CreatedAt = q.CreatedAt
		r.db.queue[i] = &cp
		return nil
	}
	return model.ErrNotFound
}

func (r queueRepo) ListRetryable(_ context.Context, now time.Time, limit int) ([]*model.QueueItem, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	var out []*model.QueueItem
	for _, q := range r.db.queue {
		if q.CanRetry(now) {
			cp := *q
			out = append(out, &cp)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r queueRepo) CancelExpired(_ context.Context, now time.Time) ([]uuid.UUID, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if err := r.db.failure("Queue.CancelExpired"); err != nil {
		return nil, err
	}
	var logIDs []uuid.UUID
	for _, q := range r.db.queue {
		if q.Status == model.QueueStatusPending && q.ExpiresAt != nil && !q.ExpiresAt.After(now) {
			q.Status = model.QueueStatusCancelled
			q.ErrorCode = model.ExpiredCode
			q.ErrorMessage = model.ExpiredMessage
			q.UpdatedAt = now
			logIDs = append(logIDs, q.NotificationLogID)
		}
	}
	return logIDs, nil
}

func (r queueRepo) DeleteFinishedBefore(_ context.Context, cutoff time.Time) (int64, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	var n int64
	kept := r.db.queue[:0]
	for _, q := range r.db.queue {
		finished := q.Status == model.QueueStatusCompleted || q.Status == model.QueueStatusCancelled || q.Status == model.QueueStatusFailed
		if finished && q.CreatedAt.Before(cutoff) {
			n++
			continue
		}
		kept = append(kept, q)
	}
	r.db.queue = kept
	return n, nil
}

type campaignRepo struct{ db *DB }

func (r campaignRepo) Create(_ context.Context, c *model.BulkNotification) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	if c.Status == "" {
		c.Status = model.CampaignStatusDraft
	}
	c.CalculateRecipients()
	c.CreatedAt = time.Now()
	c.UpdatedAt = c.CreatedAt
	cp := *c
	r.db.campaigns = append(r.db.campaigns, &cp)
	return nil
}

func (r campaignRepo) Get(_ context.Context, id uuid.UUID) (*model.BulkNotification, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	for _, c := range r.db.campaigns {
		if c.ID == id {
			cp := *c
			return &cp, nil
		}
	}
	return nil, model.ErrNotFound
}

func (r campaignRepo) List(_ context.Context, status model.CampaignStatus, page model.Pagination) ([]*model.BulkNotification, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	var out []*model.BulkNotification
	for i := len(r.db.campaigns) - 1; i >= 0; i-- {
		if c := r.db.campaigns[i]; status == "" || c.Status == status {
			cp := *c
			out = append(out, &cp)
		}
	}
	page = page.Normalize()
	start := page.Offset()
	if start > len(out) {
		start = len(out)
	}
	end := start + page.PageSize
	if end > len(out) {
		end = len(out)
	}
	return out[start:end], nil
}

func (r campaignRepo) UpdateState(_ context.Context, c *model.BulkNotification, expected model.CampaignStatus) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	for _, stored := range r.db.campaigns {
		if stored.ID != c.ID {
			continue
		}
		if stored.Status != expected {
			return model.ErrStaleState
		}
		stored.Status = c.Status
		stored.ScheduledAt = c.ScheduledAt
		stored.StartedAt = c.StartedAt
		stored.CompletedAt = c.CompletedAt
		stored.UpdatedAt = c.UpdatedAt
		return nil
	}
	return model.ErrNotFound
}

func (r campaignRepo) UpdateRecipients(_ context.Context, c *model.BulkNotification) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	c.CalculateRecipients()
	c.UpdatedAt = time.Now()
	for _, stored := range r.db.campaigns {
		if stored.ID == c.ID {
			stored.RecipientEmails = c.RecipientEmails
			stored.RecipientPhones = c.RecipientPhones
			stored.RecipientUserIDs = c.RecipientUserIDs
			stored.RecipientApplicationIDs = c.RecipientApplicationIDs
			stored.TotalRecipients = c.TotalRecipients
			stored.UpdatedAt = c.UpdatedAt
			return nil
		}
	}
	return model.ErrNotFound
}

func (r campaignRepo) AddProgress(_ context.Context, id uuid.UUID, d model.ProgressDelta) (*model.BulkNotification, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	for _, c := range r.db.campaigns {
		if c.ID == id {
			c.UpdateProgress(d.Sent, d.Failed, d.Delivered, d.Opened)
			cp := *c
			return &cp, nil
		}
	}
	return nil, model.ErrNotFound
}

func (r campaignRepo) AdvanceCursor(_ context.Context, id uuid.UUID, from, to int) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	for _, c := range r.db.campaigns {
		if c.ID != id {
			continue
		}
		if c.QueuedCount != from {
			return model.ErrStaleState
		}
		c.QueuedCount = to
		c.UpdatedAt = time.Now()
		return nil
	}
	return model.ErrNotFound
}

func (r campaignRepo) ListRunnable(_ context.Context, now time.Time) ([]*model.BulkNotification, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	var out []*model.BulkNotification
	for _, c := range r.db.campaigns {
		scheduled := c.Status == model.CampaignStatusScheduled && c.ScheduledAt != nil && !c.ScheduledAt.After(now)
		if c.Status == model.CampaignStatusRunning || scheduled {
			cp := *c
			out = append(out, &cp)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Priority.Rank() > out[j].Priority.Rank() })
	return out, nil
}

type directory struct{ db *DB }

func (d directory) Users(_ context.Context, ids []uuid.UUID) ([]model.Recipient, error) {
	d.db.mu.Lock()
	defer d.db.mu.Unlock()
	var out []model.Recipient
	for _, id := range ids {
		if r, ok := d.db.users[id]; ok {
			out = append(out, r)
		}
	}
	return out, nil
}

func (d directory) Applications(_ context.Context, ids []uuid.UUID) ([]model.Recipient, error) {
	d.db.mu.Lock()
	defer d.db.mu.Unlock()
	var out []model.Recipient
	for _, id := range ids {
		if r, ok := d.db.apps[id]; ok {
			out = append(out, r)
		}
	}
	return out, nil
}

func (d directory) Admins(_ context.Context) ([]model.Recipient, error) {
	d.db.mu.Lock()
	defer d.db.mu.Unlock()
	if err := d.db.failure("Directory.Admins"); err != nil {
		return nil, err
	}
	return append([]model.Recipient(nil), d.db.admins...), nil
}

type analyticsRepo struct{ db *DB }

func (r analyticsRepo) Upsert(_ context.Context, row *model.NotificationAnalytics) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	row.UpdatedAt = time.Now()
	for i, a := range r.db.analytics {
		if a.Date.Equal(row.Date) && a.Channel == row.Channel && a.TemplateName == row.TemplateName {
			row.ID = a.ID
			row.CreatedAt = a.CreatedAt
			cp := *row
			r.db.analytics[i] = &cp
			return nil
		}
	}
	if row.ID == uuid.Nil {
		row.ID = uuid.New()
	}
	row.CreatedAt = row.UpdatedAt
	cp := *row
	r.db.analytics = append(r.db.analytics, &cp)
	return nil
}

func (r analyticsRepo) List(_ context.Context, f model.AnalyticsFilter) ([]*model.NotificationAnalytics, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	var out []*model.NotificationAnalytics
	for _, a := range r.db.analytics {
		if !f.From.IsZero() && a.Date.Before(f.From) {
			continue
		}
		if !f.To.IsZero() && a.Date.After(f.To) {
			continue
		}
		if f.Channel != "" && a.Channel != f.Channel {
			continue
		}
		cp := *a
		out = append(out, &cp)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Date.After(out[j].Date) })
	return out, nil
}

type serviceRepo struct{ db *DB }

func (r serviceRepo) Upsert(_ context.Context, svc *model.NotificationService) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	now := time.Now()
	for _, s := range r.db.services {
		if s.Name == svc.Name {
			s.Description = svc.Description
			s.MaxWorkers = svc.MaxWorkers
			s.QueueLimit = svc.QueueLimit
			s.RetryAttempts = svc.RetryAttempts
			s.TimeoutSeconds = svc.TimeoutSeconds
			s.UpdatedAt = now
			svc.ID = s.ID
			return nil
		}
	}
	if svc.ID == uuid.Nil {
		svc.ID = uuid.New()
	}
	svc.CreatedAt = now
	svc.UpdatedAt = now
	cp := *svc
	r.db.services = append(r.db.services, &cp)
	return nil
}

func (r serviceRepo) find(match func(*model.NotificationService) bool) (*model.NotificationService, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	for _, s := range r.db.services {
		if match(s) {
			cp := *s
			return &cp, nil
		}
	}
	return nil, model.ErrNotFound
}

func (r serviceRepo) Get(_ context.Context, id uuid.UUID) (*model.NotificationService, error) {
	return r.find(func(s *model.NotificationService) bool { return s.ID == id })
}

func (r serviceRepo) GetByName(_ context.Context, name string) (*model.NotificationService, error) {
	return r.find(func(s *model.NotificationService) bool { return s.Name == name })
}

func (r serviceRepo) List(_ context.Context) ([]*model.NotificationService, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	out := make([]*model.NotificationService, 0, len(r.db.services))
	for _, s := range r.db.services {
		cp := *s
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (r serviceRepo) UpdateControl(_ context.Context, svc *model.NotificationService, expected model.ServiceStatus) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	for _, s := range r.db.services {
		if s.ID != svc.ID {
			continue
		}
		if s.Status != expected {
			return model.ErrStaleState
		}
		s.Status = svc.Status
		s.DesiredStatus = svc.DesiredStatus
		s.IsEnabled = svc.IsEnabled
		s.ErrorCount = svc.ErrorCount
		s.LastError = svc.LastError
		s.UpdatedAt = svc.UpdatedAt
		return nil
	}
	return model.ErrNotFound
}

func (r serviceRepo) UpdateHealth(_ context.Context, svc *model.NotificationService) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	for i, s := range r.db.services {
		if s.ID == svc.ID {
			cp := *svc
			cp.DesiredStatus = s.DesiredStatus
			cp.IsEnabled = s.IsEnabled
			cp.CreatedAt = s.CreatedAt
			r.db.services[i] = &cp
			return nil
		}
	}
	return model.ErrNotFound
}
