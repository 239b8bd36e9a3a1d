package main

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"net/http"
	"time"

	"chatsend/internal/constants"
	"chatsend/internal/database"
	"chatsend/internal/errors"
	"chatsend/internal/middleware"
	"chatsend/internal/models"
	"chatsend/internal/service"
	"chatsend/internal/tracing"
	"chatsend/internal/validation"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
)

// Outbox is the part of the courier the HTTP API drives.
type Outbox interface {
	Enqueue(ctx context.Context, session models.Session, rid, msg, tmid string, user models.UserRef, tshow bool) string
	SendFile(ctx context.Context, session models.Session, rid, path, name, description, tmid string) (string, error)
	ResendByID(ctx context.Context, session models.Session, id string) error
	ResendFailedMessages(ctx context.Context, session models.Session) service.SweepReport
}

// Store is the read side of the local store used by the API.
type Store interface {
	FindMessage(ctx context.Context, id string) (*models.Message, error)
	Ping(ctx context.Context) error
	Subscribe() (<-chan database.StatusChange, func())
}

type Server struct {
	router  *mux.Router
	logger  *logrus.Logger
	outbox  Outbox
	store   Store
	session models.Session
	cfg     models.ServerConfig
	server  *http.Server
}

func NewServer(cfg models.ServerConfig, session models.Session, outbox Outbox, store Store, logger *logrus.Logger) *Server {
	s := &Server{
		router:  mux.NewRouter(),
		logger:  logger,
		outbox:  outbox,
		store:   store,
		session: session,
		cfg:     cfg,
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(middleware.ObservabilityMiddleware(s.logger))

	s.router.HandleFunc("/health", s.handleHealth()).Methods(http.MethodGet)
	s.router.HandleFunc("/metrics", s.handleMetrics()).Methods(http.MethodGet)
	s.router.HandleFunc("/ws/status", s.handleStatusStream()).Methods(http.MethodGet)

	api := s.router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/rooms/{rid}/messages", s.handleSendMessage()).Methods(http.MethodPost)
	api.HandleFunc("/rooms/{rid}/uploads", s.handleSendFile()).Methods(http.MethodPost)
	api.HandleFunc("/messages/{id}", s.handleGetMessage()).Methods(http.MethodGet)
	api.HandleFunc("/messages/{id}/resend", s.handleResendMessage()).Methods(http.MethodPost)
	api.HandleFunc("/resend", s.handleResendFailed()).Methods(http.MethodPost)
}

func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:         s.cfg.ListenAddr,
		Handler:      s.router,
		ReadTimeout:  time.Duration(s.cfg.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(s.cfg.WriteTimeoutSec) * time.Second,
		IdleTimeout:  constants.DefaultServerIdleTimeoutSec * time.Second,
	}

	s.logger.WithField("addr", s.cfg.ListenAddr).Info("Starting server")
	if err := s.server.ListenAndServe(); err != nil && !stderrors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

const maxFileNameLength = 255

type sendMessageRequest struct {
	Msg   string `json:"msg"`
	TMID  string `json:"tmid,omitempty"`
	TShow bool   `json:"tshow,omitempty"`
}

type sendFileRequest struct {
	Path        string `json:"path"`
	Name        string `json:"name,omitempty"`
	Description string `json:"description,omitempty"`
	TMID        string `json:"tmid,omitempty"`
}

type createdResponse struct {
	ID     string `json:"_id"`
	Status string `json:"status,omitempty"`
}

func (s *Server) handleHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := s.store.Ping(r.Context()); err != nil {
			s.writeError(w, r, errors.Wrap(err, errors.ErrCodeDatabaseConnection, "local store unavailable"))
			return
		}
		s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

func (s *Server) handleSendMessage() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rid := mux.Vars(r)["rid"]
		var req sendMessageRequest
		if err := s.decode(r, &req); err != nil {
			s.writeError(w, r, err)
			return
		}
		if err := validateSendMessage(rid, req); err != nil {
			s.writeError(w, r, err)
			return
		}

		// The message is stored before the response; delivery continues in the background.
		ctx := context.WithoutCancel(r.Context())
		id := s.outbox.Enqueue(ctx, s.session, rid, req.Msg, req.TMID, s.session.User, req.TShow)
		if id == "" {
			s.writeError(w, r, errors.New(errors.ErrCodeLocalWrite, "message could not be stored").
				WithUserMessage("message could not be stored"))
			return
		}

		s.writeJSON(w, http.StatusCreated, createdResponse{ID: id, Status: models.StatusTemp.String()})
	}
}

func validateSendMessage(rid string, req sendMessageRequest) error {
	if err := validation.ValidateRoomID(rid); err != nil {
		return err
	}
	if err := validation.ValidateMessageBody(req.Msg, constants.DefaultMaxMessageLength); err != nil {
		return err
	}
	if req.TMID != "" {
		if err := validation.ValidateThreadID(req.TMID); err != nil {
			return err
		}
	}
	return nil
}

func (s *Server) handleSendFile() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rid := mux.Vars(r)["rid"]
		var req sendFileRequest
		if err := s.decode(r, &req); err != nil {
			s.writeError(w, r, err)
			return
		}
		if err := validation.ValidateRoomID(rid); err != nil {
			s.writeError(w, r, err)
			return
		}
		if err := validation.ValidateThreadID(req.TMID); err != nil {
			s.writeError(w, r, err)
			return
		}
		if err := validation.ValidateStringLength(req.Name, "file name", 0, maxFileNameLength); err != nil {
			s.writeError(w, r, err)
			return
		}
		if err := validation.ValidateStringLength(req.Description, "description", 0, constants.DefaultMaxMessageLength); err != nil {
			s.writeError(w, r, err)
			return
		}

		id, err := s.outbox.SendFile(context.WithoutCancel(r.Context()), s.session, rid, req.Path, req.Name, req.Description, req.TMID)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		s.writeJSON(w, http.StatusCreated, createdResponse{ID: id})
	}
}

func (s *Server) handleGetMessage() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := mux.Vars(r)["id"]
		if err := validation.ValidateMessageID(id); err != nil {
			s.writeError(w, r, err)
			return
		}

		m, err := s.store.FindMessage(r.Context(), id)
		if err != nil {
			if stderrors.Is(err, models.ErrNotFound) {
				s.writeError(w, r, errors.NewNotFoundError("message", id))
				return
			}
			s.writeError(w, r, errors.Wrap(err, errors.ErrCodeInternalError, "failed to load message"))
			return
		}
		s.writeJSON(w, http.StatusOK, m)
	}
}

func (s *Server) handleResendMessage() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := mux.Vars(r)["id"]
		if err := validation.ValidateMessageID(id); err != nil {
			s.writeError(w, r, err)
			return
		}

		if err := s.outbox.ResendByID(context.WithoutCancel(r.Context()), s.session, id); err != nil {
			s.writeError(w, r, err)
			return
		}
		s.writeJSON(w, http.StatusAccepted, createdResponse{ID: id})
	}
}

func (s *Server) handleResendFailed() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		report := s.outbox.ResendFailedMessages(context.WithoutCancel(r.Context()), s.session)
		s.writeJSON(w, http.StatusOK, report)
	}
}

func (s *Server) decode(r *http.Request, dst interface{}) error {
	if err := validation.ValidateHTTPRequestSize(r, constants.MaxHTTPRequestBytes); err != nil {
		return err
	}
	body := http.MaxBytesReader(nil, r.Body, constants.MaxHTTPRequestBytes)
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return errors.Wrap(err, errors.ErrCodeInvalidInput, "invalid request body").
			WithUserMessage("request body must be valid JSON")
	}
	return nil
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.WithError(err).Error("Failed to encode response")
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	requestID := tracing.GetRequestID(r.Context())
	status := errors.HTTPStatusCode(err)
	if status >= http.StatusInternalServerError {
		s.logger.WithFields(logrus.Fields{
			"request_id": requestID,
			"error_code": errors.GetCode(err),
		}).WithError(err).Error("Request failed")
	} else {
		// Client errors are safe to explain
		var appErr *errors.AppError
		if stderrors.As(err, &appErr) && appErr.UserMessage == "" {
			appErr.UserMessage = appErr.Message
		}
	}
	s.writeJSON(w, status, errors.ToHTTPResponse(err, requestID))
}
