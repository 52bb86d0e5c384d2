package http

import (
	"net/http"
	"strings"

	"sendctl/internal/core/domain"
	"sendctl/internal/core/ports"
	"sendctl/internal/core/services"
	"sendctl/pkg/errors"
	"sendctl/pkg/fieldtrial"
	"sendctl/pkg/validation"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// SenderHandlerOptions carries the optional collaborators. Nil fields turn
// the matching endpoints off.
type SenderHandlerOptions struct {
	Tracks      ports.TrackFactory
	Monitor     *services.AdaptationMonitor
	Stats       ports.StatsRepository
	FieldTrials fieldtrial.Set
	// Feedback returns receiver feedback counters for an engine sender.
	Feedback func(domain.SenderHandle) (interface{}, bool)
	// LiveStats is set when the monitor polls the engine itself. Pushed
	// snapshots are refused then so one tracker never sees two feeds.
	LiveStats bool
	// OnRemove runs after a sender was removed from the session.
	OnRemove func(domain.SenderID)
}

type SenderHandler struct {
	session *services.Session
	options SenderHandlerOptions
	logger  *zap.SugaredLogger
}

var _ ports.HTTPHandler = (*SenderHandler)(nil)

func NewSenderHandler(session *services.Session, options SenderHandlerOptions, logger *zap.SugaredLogger) *SenderHandler {
	return &SenderHandler{
		session: session,
		options: options,
		logger:  logger,
	}
}

func (h *SenderHandler) RegisterRoutes(api *gin.RouterGroup) {
	api.GET("/engine/field-trials", h.GetFieldTrials)

	api.GET("/senders", h.ListSenders)
	api.POST("/senders", h.CreateSender)
	api.GET("/senders/:id", h.GetSender)
	api.DELETE("/senders/:id", h.DeleteSender)

	api.GET("/senders/:id/capabilities/:kind", h.GetCapabilities)
	api.GET("/senders/:id/parameters", h.GetParameters)
	api.PUT("/senders/:id/parameters", h.SetParameters)
	api.GET("/senders/:id/degradation-preference", h.GetDegradationPreference)
	api.PUT("/senders/:id/degradation-preference", h.SetDegradationPreference)

	api.GET("/senders/:id/track", h.GetTrack)
	api.PUT("/senders/:id/track", h.ReplaceTrack)
	api.DELETE("/senders/:id/track", h.ClearTrack)

	api.GET("/senders/:id/adaptation", h.GetAdaptation)
	api.POST("/senders/:id/stats", h.PushStats)
	api.GET("/senders/:id/feedback", h.GetFeedback)
}

type senderResponse struct {
	ID       domain.SenderID  `json:"id"`
	Kind     domain.MediaKind `json:"kind"`
	Disposed bool             `json:"disposed"`
	Watched  bool             `json:"watched"`
}

func (h *SenderHandler) describe(sender *services.Sender) senderResponse {
	resp := senderResponse{
		ID:       sender.ID(),
		Kind:     sender.Kind(),
		Disposed: sender.Disposed(),
	}
	if h.options.Monitor != nil {
		_, resp.Watched = h.options.Monitor.Tracker(sender.ID())
	}
	return resp
}

// sender resolves :id or records the error and returns nil.
func (h *SenderHandler) sender(c *gin.Context) *services.Sender {
	sender, err := h.session.Sender(domain.SenderID(c.Param("id")))
	if err != nil {
		_ = c.Error(err)
		return nil
	}
	return sender
}

func (h *SenderHandler) GetFieldTrials(c *gin.Context) {
	pairs := make([]gin.H, 0, len(h.options.FieldTrials))
	for _, p := range h.options.FieldTrials {
		pairs = append(pairs, gin.H{"key": p.Key, "value": p.Value})
	}
	c.JSON(http.StatusOK, gin.H{
		"field_trials": h.options.FieldTrials.String(),
		"pairs":        pairs,
	})
}

func (h *SenderHandler) ListSenders(c *gin.Context) {
	senders := h.session.Senders()
	out := make([]senderResponse, 0, len(senders))
	for _, s := range senders {
		out = append(out, h.describe(s))
	}
	c.JSON(http.StatusOK, gin.H{
		"session_id": h.session.ID(),
		"senders":    out,
	})
}

type trackRequest struct {
	ID     string           `json:"id" binding:"required,max=255"`
	Kind   domain.MediaKind `json:"kind"`
	Width  int              `json:"width"`
	Height int              `json:"height"`
}

// createSenderRequest either describes a track to create a new engine
// sender for, or names a sender the engine already holds by Handle and Kind.
type createSenderRequest struct {
	ID     domain.SenderID     `json:"id" binding:"required"`
	Track  *trackRequest       `json:"track"`
	Handle domain.SenderHandle `json:"handle"`
	Kind   *domain.MediaKind   `json:"kind"`
}

func (h *SenderHandler) CreateSender(c *gin.Context) {
	var req createSenderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(errors.NewValidationError(err.Error()))
		return
	}
	if err := validation.ValidateSenderID(string(req.ID)); err != nil {
		_ = c.Error(errors.NewValidationError(err.Error()))
		return
	}
	if _, err := h.session.Sender(req.ID); err == nil {
		_ = c.Error(errors.WrapError(domain.ErrSenderExists, errors.ErrCodeValidation,
			"sender "+string(req.ID)+" already attached", http.StatusConflict))
		return
	}

	var (
		senderHandle domain.SenderHandle
		kind         domain.MediaKind
	)
	switch {
	case req.Track != nil && req.Handle != 0:
		_ = c.Error(errors.NewValidationError("give either a track or an engine sender handle, not both"))
		return

	case req.Track != nil:
		if h.options.Tracks == nil {
			_ = c.Error(errors.NewAppError(errors.ErrCodeValidation,
				"this engine backend does not create senders, attach one by handle", http.StatusNotImplemented))
			return
		}
		trackHandle, err := h.createTrack(*req.Track)
		if err != nil {
			_ = c.Error(err)
			return
		}
		senderHandle, err = h.options.Tracks.AddSender(trackHandle)
		if err != nil {
			_ = c.Error(errors.WrapError(err, errors.ErrCodeNativeCall, "failed to add sender", http.StatusBadGateway))
			return
		}
		kind = req.Track.Kind

	case req.Handle != 0:
		if req.Kind == nil {
			_ = c.Error(errors.NewValidationError("kind is required when attaching an engine sender"))
			return
		}
		senderHandle, kind = req.Handle, *req.Kind

	default:
		_ = c.Error(errors.NewValidationError("either a track or an engine sender handle is required"))
		return
	}

	sender, err := h.session.Attach(req.ID, senderHandle, kind)
	if err != nil {
		_ = c.Error(err)
		return
	}

	if h.options.Monitor != nil && sender.Kind() == domain.MediaKindVideo {
		if _, err := h.options.Monitor.Watch(c.Request.Context(), sender.ID()); err != nil {
			h.logger.Warnw("Failed to watch sender adaptation", "sender_id", sender.ID(), "error", err)
		}
	}

	c.JSON(http.StatusCreated, h.describe(sender))
}

func (h *SenderHandler) GetSender(c *gin.Context) {
	sender := h.sender(c)
	if sender == nil {
		return
	}
	c.JSON(http.StatusOK, h.describe(sender))
}

func (h *SenderHandler) DeleteSender(c *gin.Context) {
	id := domain.SenderID(c.Param("id"))
	if err := h.session.Remove(c.Request.Context(), id); err != nil {
		_ = c.Error(err)
		return
	}

	if h.options.Monitor != nil {
		h.options.Monitor.Unwatch(id)
	}
	if h.options.Stats != nil {
		if err := h.options.Stats.Delete(c.Request.Context(), id); err != nil {
			h.logger.Warnw("Failed to drop statistics snapshot", "sender_id", id, "error", err)
		}
	}
	if h.options.OnRemove != nil {
		h.options.OnRemove(id)
	}
	c.Status(http.StatusNoContent)
}

func (h *SenderHandler) GetCapabilities(c *gin.Context) {
	sender := h.sender(c)
	if sender == nil {
		return
	}
	kind, err := domain.ParseMediaKind(strings.ToLower(c.Param("kind")))
	if err != nil {
		_ = c.Error(errors.NewValidationError(err.Error()))
		return
	}

	caps, err := sender.GetCapabilities(c.Request.Context(), kind)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, caps)
}

func (h *SenderHandler) GetParameters(c *gin.Context) {
	sender := h.sender(c)
	if sender == nil {
		return
	}
	params, err := sender.GetParameters(c.Request.Context())
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, params)
}

func (h *SenderHandler) SetParameters(c *gin.Context) {
	sender := h.sender(c)
	if sender == nil {
		return
	}

	var params domain.SendParameters
	if err := c.ShouldBindJSON(&params); err != nil {
		_ = c.Error(errors.NewValidationError(err.Error()))
		return
	}
	if err := validation.ValidateSendParameters(params); err != nil {
		_ = c.Error(errors.NewValidationError(err.Error()))
		return
	}

	if err := sender.SetParameters(c.Request.Context(), params); err != nil {
		_ = c.Error(err)
		return
	}
	c.Status(http.StatusNoContent)
}

type degradationPreferenceBody struct {
	DegradationPreference domain.DegradationPreference `json:"degradation_preference"`
}

func (h *SenderHandler) GetDegradationPreference(c *gin.Context) {
	sender := h.sender(c)
	if sender == nil {
		return
	}
	pref, err := sender.GetDegradationPreference(c.Request.Context())
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, degradationPreferenceBody{DegradationPreference: pref})
}

func (h *SenderHandler) SetDegradationPreference(c *gin.Context) {
	sender := h.sender(c)
	if sender == nil {
		return
	}

	var body degradationPreferenceBody
	if err := c.ShouldBindJSON(&body); err != nil {
		_ = c.Error(errors.NewValidationError(err.Error()))
		return
	}
	if err := sender.SetDegradationPreference(c.Request.Context(), body.DegradationPreference); err != nil {
		_ = c.Error(err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *SenderHandler) GetTrack(c *gin.Context) {
	sender := h.sender(c)
	if sender == nil {
		return
	}
	track, err := sender.Track(c.Request.Context())
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"track": track})
}

type replaceTrackRequest struct {
	// Handle refers to an existing engine track. When zero a new track is
	// created from the remaining fields.
	Handle domain.TrackHandle `json:"handle"`
	trackRequest
}

func (h *SenderHandler) ReplaceTrack(c *gin.Context) {
	sender := h.sender(c)
	if sender == nil {
		return
	}

	var req replaceTrackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(errors.NewValidationError(err.Error()))
		return
	}

	track := &domain.Track{
		Handle: req.Handle,
		ID:     req.ID,
		Kind:   req.Kind,
		Width:  req.Width,
		Height: req.Height,
	}
	if track.Handle == 0 {
		if h.options.Tracks == nil {
			_ = c.Error(errors.NewValidationError("track handle is required with this engine backend"))
			return
		}
		handle, err := h.createTrack(req.trackRequest)
		if err != nil {
			_ = c.Error(err)
			return
		}
		track.Handle = handle
	}

	accepted, err := sender.ReplaceTrack(c.Request.Context(), track)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"accepted": accepted, "track": track})
}

func (h *SenderHandler) ClearTrack(c *gin.Context) {
	sender := h.sender(c)
	if sender == nil {
		return
	}
	if _, err := sender.ReplaceTrack(c.Request.Context(), nil); err != nil {
		_ = c.Error(err)
		return
	}
	c.Status(http.StatusNoContent)
}

type adaptationResponse struct {
	SenderID domain.SenderID        `json:"sender_id"`
	State    domain.AdaptationState `json:"state"`
	// LimitedSeconds is keyed by reason name.
	LimitedSeconds map[string]float64 `json:"limited_seconds,omitempty"`
}

func (h *SenderHandler) GetAdaptation(c *gin.Context) {
	tracker, ok := h.tracker(c)
	if !ok {
		return
	}

	state, observed := tracker.LastState()
	if !observed {
		_ = c.Error(errors.WrapError(domain.ErrNoSnapshot, errors.ErrCodeNotFound,
			"no statistics observed yet", http.StatusNotFound))
		return
	}

	limited := make(map[string]float64)
	for reason, seconds := range state.QualityLimitationDurations() {
		limited[reason.String()] = seconds
	}
	c.JSON(http.StatusOK, adaptationResponse{
		SenderID:       tracker.SenderID(),
		State:          state,
		LimitedSeconds: limited,
	})
}

// PushStats stores a snapshot produced outside the process and observes it
// right away.
func (h *SenderHandler) PushStats(c *gin.Context) {
	if h.options.LiveStats {
		_ = c.Error(errors.NewAppError(errors.ErrCodeValidation,
			"statistics are read from the engine, pushed snapshots are not accepted", http.StatusConflict))
		return
	}
	tracker, ok := h.tracker(c)
	if !ok {
		return
	}

	var stats domain.OutboundStreamStats
	if err := c.ShouldBindJSON(&stats); err != nil {
		_ = c.Error(errors.NewValidationError(err.Error()))
		return
	}

	if h.options.Stats != nil {
		if err := h.options.Stats.Save(c.Request.Context(), tracker.SenderID(), stats); err != nil {
			_ = c.Error(errors.WrapError(err, errors.ErrCodeInternal, "failed to store statistics", http.StatusInternalServerError))
			return
		}
	}

	changed, err := h.options.Monitor.Ingest(tracker.SenderID(), stats)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"changed": changed})
}

func (h *SenderHandler) GetFeedback(c *gin.Context) {
	sender := h.sender(c)
	if sender == nil {
		return
	}
	if h.options.Feedback == nil {
		_ = c.Error(errors.NewAppError(errors.ErrCodeNotFound, "feedback is not available with this engine backend", http.StatusNotFound))
		return
	}
	handle, ok := sender.Handle()
	if !ok {
		_ = c.Error(errors.NewInvalidHandleError("GetFeedback"))
		return
	}
	feedback, ok := h.options.Feedback(handle)
	if !ok {
		_ = c.Error(errors.NewNotFoundError("feedback for sender " + string(sender.ID())))
		return
	}
	c.JSON(http.StatusOK, gin.H{"sender_id": sender.ID(), "feedback": feedback})
}

// tracker resolves the adaptation tracker of :id, watching the sender on
// first use.
func (h *SenderHandler) tracker(c *gin.Context) (*services.AdaptationTracker, bool) {
	if h.options.Monitor == nil {
		_ = c.Error(errors.NewAppError(errors.ErrCodeNotFound, "adaptation monitoring is disabled", http.StatusNotFound))
		return nil, false
	}
	sender := h.sender(c)
	if sender == nil {
		return nil, false
	}
	if tracker, ok := h.options.Monitor.Tracker(sender.ID()); ok {
		return tracker, true
	}

	tracker, err := h.options.Monitor.Watch(c.Request.Context(), sender.ID())
	if err != nil {
		_ = c.Error(err)
		return nil, false
	}
	return tracker, true
}

func (h *SenderHandler) createTrack(req trackRequest) (domain.TrackHandle, error) {
	if err := validation.ValidateTrackID(req.ID); err != nil {
		return 0, errors.NewValidationError(err.Error())
	}
	if !req.Kind.Valid() {
		return 0, errors.NewValidationError("unknown media kind")
	}
	if err := validation.ValidateDimensions(req.Width, req.Height); err != nil {
		return 0, errors.NewValidationError(err.Error())
	}

	handle, err := h.options.Tracks.CreateTrack(req.Kind, req.ID, req.Width, req.Height)
	if err != nil {
		return 0, errors.WrapError(err, errors.ErrCodeNativeCall, "failed to create track", http.StatusBadGateway)
	}
	return handle, nil
}
