package web

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"velvet-metal/internal/domain"
	"velvet-metal/internal/domain/model"
	"velvet-metal/internal/infra/i18n"
	"velvet-metal/internal/infra/logging"
	"velvet-metal/internal/infra/metrics"
	"velvet-metal/internal/infra/preview"
	"velvet-metal/internal/usecase"
	"velvet-metal/internal/wizard"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

const registerPath = "/register"

// PreviewSource serves pending avatar previews.
type PreviewSource interface {
	Get(token string) (*preview.Item, error)
}

type HandlersConfig struct {
	PollInterval   time.Duration
	Heartbeat      time.Duration
	AvatarMaxBytes int64
	AppPath        string // where a finished wizard lands
}

// Handlers contains the wizard's HTTP handlers.
type Handlers struct {
	wizard    usecase.WizardUseCase
	tiers     usecase.TierUseCase
	conns     usecase.ConnectionUseCase
	previews  PreviewSource
	auth      *AuthManager
	templates *Templates
	tr        *i18n.Translator
	pollers   *pollerSet
	cfg       HandlersConfig
	log       *zerolog.Logger
}

func NewHandlers(
	wiz usecase.WizardUseCase,
	tiers usecase.TierUseCase,
	conns usecase.ConnectionUseCase,
	previews PreviewSource,
	auth *AuthManager,
	templates *Templates,
	tr *i18n.Translator,
	cfg HandlersConfig,
	logger *zerolog.Logger,
) *Handlers {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = wizard.DefaultPollInterval
	}
	if cfg.Heartbeat <= 0 {
		cfg.Heartbeat = 25 * time.Second
	}
	if cfg.AvatarMaxBytes <= 0 {
		cfg.AvatarMaxBytes = wizard.MaxAvatarBytes
	}
	if cfg.AppPath == "" {
		cfg.AppPath = "/app"
	}
	return &Handlers{
		wizard:    wiz,
		tiers:     tiers,
		conns:     conns,
		previews:  previews,
		auth:      auth,
		templates: templates,
		tr:        tr,
		pollers:   newPollerSet(),
		cfg:       cfg,
		log:       logger,
	}
}

// redirectStep sends the browser to the wizard URL for step. notice, when
// set, is shown once as an info flash.
func (h *Handlers) redirectStep(w http.ResponseWriter, r *http.Request, step wizard.Step, notice url.Values) {
	base := registerPath
	if len(notice) > 0 {
		base += "?" + notice.Encode()
	}
	http.Redirect(w, r, wizard.Location(base, step), http.StatusSeeOther)
}

func notice(key string, kv ...string) url.Values {
	v := url.Values{"notice": []string{key}}
	for i := 0; i+1 < len(kv); i += 2 {
		v.Set(kv[i], kv[i+1])
	}
	return v
}

func (h *Handlers) render(w http.ResponseWriter, r *http.Request, page string, status int, data any) {
	var buf bytes.Buffer
	if err := h.templates.Render(&buf, page, data); err != nil {
		logging.With(r.Context(), h.log).Error().Err(err).Str("page", page).Msg("render failed")
		http.Error(w, "Failed to render template", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}

// renderStep renders the page for st.Step.
func (h *Handlers) renderStep(w http.ResponseWriter, r *http.Request, st wizard.State, flash *FlashMessage, status int) {
	ctx := r.Context()
	switch st.Step {
	case wizard.StepSubscription:
		tiers, err := h.tiers.List(ctx)
		if err != nil && flash == nil {
			flash = &FlashMessage{Type: "error", Message: h.tr.T("tiers.unavailable")}
		}
		h.render(w, r, "subscription", status, SubscriptionPageData{
			PageData: newPageData(st.Step, flash),
			Tiers:    tiers,
			Selected: st.SelectedTierID,
		})

	case wizard.StepServices:
		conns, err := h.conns.Statuses(ctx, st.UserID)
		if err != nil {
			logging.With(ctx, h.log).Error().Err(err).Msg("connection status unavailable")
		}
		gate := wizard.CompletionGate(conns)
		h.render(w, r, "services", status, ServicesPageData{
			PageData:     newPageData(st.Step, flash),
			Services:     h.serviceViews(conns),
			CanComplete:  gate.Enabled(),
			Blocker:      string(gate.Blocker),
			BlockerHint:  gate.Message(),
			PollInterval: h.cfg.PollInterval,
		})

	default:
		data := AccountPageData{
			PageData:   newPageData(wizard.StepAccount, flash),
			Form:       st.Form,
			MaxAvatar:  h.cfg.AvatarMaxBytes,
			Registered: st.Registered(),
		}
		data.Form.Password, data.Form.ConfirmPassword = "", ""
		if st.Form.Avatar != nil {
			data.PreviewURL = registerPath + "/avatar/preview/" + url.PathEscape(st.Form.Avatar.Token)
		}
		h.render(w, r, "account", status, data)
	}
}

func (h *Handlers) serviceViews(conns []*model.ServiceConnection) []ServiceView {
	available := map[model.Service]bool{}
	for _, svc := range h.conns.Available() {
		available[svc] = true
	}
	byService := map[model.Service]*model.ServiceConnection{}
	for _, c := range conns {
		byService[c.Service] = c
	}
	views := make([]ServiceView, 0, len(model.Services))
	for _, svc := range model.Services {
		v := ServiceView{Service: svc, Name: svc.DisplayName(), Available: available[svc]}
		if c, ok := byService[svc]; ok {
			v.Connected = true
			v.Syncing = c.Syncing()
			v.LastSynced = c.LastLibrarySync
		}
		views = append(views, v)
	}
	return views
}

// fail re-renders the current step with the flash for err.
func (h *Handlers) fail(w http.ResponseWriter, r *http.Request, st wizard.State, err error) {
	flash, status := errorFlash(h.tr, err, h.cfg.AvatarMaxBytes)
	ev := logging.With(r.Context(), h.log).Warn()
	if status >= http.StatusInternalServerError {
		ev = logging.With(r.Context(), h.log).Error()
	}
	ev.Err(err).Int("status", status).Str("step", st.Step.String()).Msg("wizard action rejected")
	h.renderStep(w, r, st, flash, status)
}

// Register serves the wizard page (GET /register?step=...).
func (h *Handlers) Register(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()
	st, err := h.wizard.Load(ctx, sessionFrom(ctx), q)
	switch {
	case errors.Is(err, wizard.ErrNotRegistered):
		h.redirectStep(w, r, wizard.StepAccount, nil)
		return
	case errors.Is(err, wizard.ErrTierRequired):
		h.redirectStep(w, r, wizard.StepSubscription, nil)
		return
	case err != nil:
		logging.With(ctx, h.log).Warn().Err(err).Msg("wizard state load failed")
	}

	var args []interface{}
	if svc, err := model.ParseService(q.Get("service")); err == nil {
		args = append(args, svc.DisplayName())
	}
	h.renderStep(w, r, st, noticeFlash(h.tr, q.Get("notice"), args...), http.StatusOK)
}

// SubmitAccount runs the registration pipeline (POST /register/account).
func (h *Handlers) SubmitAccount(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Invalid form", http.StatusBadRequest)
		return
	}
	in := usecase.AccountInput{
		Email:           r.PostFormValue("email"),
		DisplayName:     r.PostFormValue("display_name"),
		Password:        r.PostFormValue("password"),
		ConfirmPassword: r.PostFormValue("confirm_password"),
	}
	st, out, err := h.wizard.SubmitAccount(ctx, sessionFrom(ctx), clientIP(r), in)
	if err != nil {
		h.fail(w, r, st, err)
		return
	}
	var n url.Values
	if out != nil && out.AvatarErr != nil {
		n = notice("avatar_failed")
	}
	h.redirectStep(w, r, st.Step, n)
}

// UploadAvatar accepts the avatar picker (POST /register/avatar).
func (h *Handlers) UploadAvatar(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sess := sessionFrom(ctx)
	limit := h.cfg.AvatarMaxBytes + 1<<20 // room for the multipart envelope

	r.Body = http.MaxBytesReader(w, r.Body, limit)
	if err := r.ParseMultipartForm(limit); err != nil {
		st, _ := h.wizard.Current(ctx, sess)
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) || strings.Contains(err.Error(), "request body too large") {
			h.fail(w, r, st, wizard.ErrAvatarTooLarge)
			return
		}
		h.fail(w, r, st, wizard.ErrAvatarEmpty)
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	file, hdr, err := r.FormFile("avatar")
	if err != nil {
		st, _ := h.wizard.Current(ctx, sess)
		h.fail(w, r, st, wizard.ErrAvatarEmpty)
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, h.cfg.AvatarMaxBytes+1))
	if err != nil {
		st, _ := h.wizard.Current(ctx, sess)
		h.fail(w, r, st, err)
		return
	}
	st, err := h.wizard.AttachAvatar(ctx, sess, usecase.AvatarUpload{
		FileName:    hdr.Filename,
		ContentType: hdr.Header.Get("Content-Type"),
		Data:        data,
	})
	if err != nil {
		h.fail(w, r, st, err)
		return
	}
	h.redirectStep(w, r, wizard.StepAccount, nil)
}

// RemoveAvatar drops the pending avatar (POST /register/avatar/remove).
func (h *Handlers) RemoveAvatar(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	st, err := h.wizard.RemoveAvatar(ctx, sessionFrom(ctx))
	if err != nil {
		h.fail(w, r, st, err)
		return
	}
	h.redirectStep(w, r, wizard.StepAccount, nil)
}

// AvatarPreview streams a pending preview owned by this session.
func (h *Handlers) AvatarPreview(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	token := chi.URLParam(r, "token")
	st, _ := h.wizard.Current(ctx, sessionFrom(ctx))
	if st.Form.Avatar == nil || st.Form.Avatar.Token != token {
		http.NotFound(w, r)
		return
	}
	item, err := h.previews.Get(token)
	if err != nil {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", item.ContentType)
	w.Header().Set("Cache-Control", "private, no-store")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	_, _ = w.Write(item.Data)
}

// SelectTier records the chosen tier (POST /register/tier).
func (h *Handlers) SelectTier(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Invalid form", http.StatusBadRequest)
		return
	}
	st, err := h.wizard.SelectTier(ctx, sessionFrom(ctx), r.PostFormValue("tier_id"))
	if err != nil {
		h.fail(w, r, st, err)
		return
	}
	h.redirectStep(w, r, st.Step, nil)
}

// Continue advances from the subscription step (POST /register/continue).
func (h *Handlers) Continue(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	st, err := h.wizard.Continue(ctx, sessionFrom(ctx))
	if err != nil {
		h.fail(w, r, st, err)
		return
	}
	h.redirectStep(w, r, st.Step, nil)
}

// Back moves one step back (POST /register/back).
func (h *Handlers) Back(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	st, err := h.wizard.Back(ctx, sessionFrom(ctx))
	if err != nil {
		logging.With(ctx, h.log).Warn().Err(err).Msg("back failed")
	}
	h.redirectStep(w, r, st.Step, nil)
}

// Connect starts a provider's OAuth flow (GET /register/connect/{service}).
func (h *Handlers) Connect(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	svc, err := model.ParseService(chi.URLParam(r, "service"))
	if err != nil {
		http.NotFound(w, r)
		return
	}
	st, _ := h.wizard.Current(ctx, sessionFrom(ctx))
	if !st.Registered() {
		h.redirectStep(w, r, wizard.StepAccount, nil)
		return
	}
	authURL, err := h.conns.BeginConnect(ctx, st.UserID, svc)
	if err != nil {
		h.fail(w, r, st, err)
		return
	}
	http.Redirect(w, r, authURL, http.StatusFound)
}

// Callback finishes a provider's OAuth flow (GET /register/callback/{service}).
func (h *Handlers) Callback(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logging.With(ctx, h.log)
	svc, err := model.ParseService(chi.URLParam(r, "service"))
	if err != nil {
		http.NotFound(w, r)
		return
	}
	q := r.URL.Query()
	if e := q.Get("error"); e != "" {
		log.Info().Str("service", svc.String()).Str("error", e).Msg("provider consent denied")
		h.redirectStep(w, r, wizard.StepServices, notice("connect_denied"))
		return
	}
	conn, err := h.conns.CompleteConnect(ctx, svc, q.Get("state"), q.Get("code"))
	if err != nil {
		log.Warn().Err(err).Str("service", svc.String()).Msg("connect failed")
		if errors.Is(err, domain.ErrUnauthorized) {
			http.Error(w, "Invalid state", http.StatusForbidden)
			return
		}
		h.redirectStep(w, r, wizard.StepServices, notice("connect_failed"))
		return
	}
	h.pollers.kick(conn.UserID)
	h.redirectStep(w, r, wizard.StepServices, notice("connected", "service", svc.String()))
}

type connectionJSON struct {
	Service         model.Service `json:"service"`
	Name            string        `json:"name"`
	Syncing         bool          `json:"syncing"`
	ConnectedAt     time.Time     `json:"connected_at"`
	LastLibrarySync *time.Time    `json:"last_library_sync"`
}

type statusJSON struct {
	Connections []connectionJSON `json:"connections"`
	CanComplete bool             `json:"can_complete"`
	Blocker     string           `json:"blocker"`
	Message     string           `json:"message"`
	Polling     bool             `json:"polling"`
	Error       string           `json:"error,omitempty"`
}

func newStatusJSON(conns []*model.ServiceConnection, gate wizard.Gate) statusJSON {
	out := statusJSON{
		Connections: make([]connectionJSON, 0, len(conns)),
		CanComplete: gate.Enabled(),
		Blocker:     string(gate.Blocker),
		Message:     gate.Message(),
		Polling:     wizard.AnySyncing(conns),
	}
	for _, c := range conns {
		out.Connections = append(out.Connections, connectionJSON{
			Service:         c.Service,
			Name:            c.Service.DisplayName(),
			Syncing:         c.Syncing(),
			ConnectedAt:     c.ConnectedAt,
			LastLibrarySync: c.LastLibrarySync,
		})
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// registeredUser returns the wizard's user or answers 401.
func (h *Handlers) registeredUser(w http.ResponseWriter, r *http.Request) (string, bool) {
	st, _ := h.wizard.Current(r.Context(), sessionFrom(r.Context()))
	if !st.Registered() {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "not registered"})
		return "", false
	}
	return st.UserID, true
}

// ServiceStatus is the one-shot status snapshot (GET /register/services/status).
func (h *Handlers) ServiceStatus(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.registeredUser(w, r)
	if !ok {
		return
	}
	conns, err := h.conns.Statuses(r.Context(), userID)
	body := newStatusJSON(conns, wizard.CompletionGate(conns))
	if err != nil {
		logging.With(r.Context(), h.log).Error().Err(err).Msg("connection status unavailable")
		body.Error = "status unavailable"
	}
	writeJSON(w, http.StatusOK, body)
}

// ServiceEvents streams status snapshots as server-sent events
// (GET /register/services/events). The poller lives as long as the request.
func (h *Handlers) ServiceEvents(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.registeredUser(w, r)
	if !ok {
		return
	}
	ctx := r.Context()
	rc := http.NewResponseController(w)
	_ = rc.SetWriteDeadline(time.Time{})

	poller := wizard.NewPoller(func(ctx context.Context) ([]*model.ServiceConnection, error) {
		return h.conns.Statuses(ctx, userID)
	}, h.cfg.PollInterval, logging.With(ctx, h.log), wizard.WithPollHook(metrics.IncSyncPoll))
	defer h.pollers.add(userID, poller)()
	go func() { _ = poller.Run(ctx) }()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	if err := rc.Flush(); err != nil {
		return
	}

	heartbeat := time.NewTicker(h.cfg.Heartbeat)
	defer heartbeat.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case snap, ok := <-poller.Updates():
			if !ok {
				return
			}
			data, err := json.Marshal(newStatusJSON(snap.Connections, snap.Gate))
			if err != nil {
				return
			}
			if _, err := fmt.Fprintf(w, "event: status\ndata: %s\n\n", data); err != nil {
				return
			}
		case <-heartbeat.C:
			if _, err := io.WriteString(w, ": ping\n\n"); err != nil {
				return
			}
		}
		if err := rc.Flush(); err != nil {
			return
		}
	}
}

// Complete is the terminal action (POST /register/complete).
func (h *Handlers) Complete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	// The wizard state survives until the session cookie is written.
	st, _, err := h.wizard.Complete(ctx, sessionFrom(ctx), func(st wizard.State) error {
		_, err := h.auth.MintSession(w, st.UserID)
		return err
	})
	if err != nil {
		h.fail(w, r, st, err)
		return
	}
	h.auth.ClearWizard(w)
	logging.With(ctx, h.log).Info().Str("user_id", st.UserID).Msg("wizard completed")
	http.Redirect(w, r, h.cfg.AppPath, http.StatusSeeOther)
}

// App is the landing page after the wizard (GET /app).
func (h *Handlers) App(w http.ResponseWriter, r *http.Request) {
	userID, err := h.auth.SessionUser(r)
	if err != nil {
		http.Redirect(w, r, registerPath, http.StatusSeeOther)
		return
	}
	data := AppPageData{PageData: PageData{Title: "Welcome to Velvet Metal"}, UserID: userID}
	h.render(w, r, "app", http.StatusOK, data)
}
