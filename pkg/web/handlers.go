package web

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/pion/webrtc/v3"
	"github.com/teslashibe/go-camsession/pkg/coordinator"
	"github.com/teslashibe/go-camsession/pkg/host"
	"github.com/teslashibe/go-camsession/pkg/hub"
	"github.com/teslashibe/go-camsession/pkg/permission"
	"github.com/teslashibe/go-camsession/pkg/pipeline"
	"github.com/teslashibe/go-camsession/pkg/protocol"
)

// StatusResponse is returned by GET /api/status
type StatusResponse struct {
	Session       coordinator.Snapshot `json:"session"`
	Permission    permission.Status    `json:"permission"`
	Viewers       int                  `json:"viewers"`
	StatusClients int                  `json:"status_clients"`
}

// ResumeRequest is the optional body of POST /api/lifecycle/resume
type ResumeRequest struct {
	Selector *int `json:"selector"`
}

// PermissionRequest is the body of POST /api/permission/camera
type PermissionRequest struct {
	Granted bool `json:"granted"`
}

// handleStatus returns the current session state
func (s *Server) handleStatus(c *fiber.Ctx) error {
	return c.JSON(StatusResponse{
		Session:       s.coord.Snapshot(),
		Permission:    s.broker.Status(permission.Camera),
		Viewers:       s.Viewers(),
		StatusClients: s.statusHub.ClientCount(),
	})
}

// handleResume delivers a resume event and waits for the result
func (s *Server) handleResume(c *fiber.Ctx) error {
	sel := s.coord.Session().Selector

	if len(c.Body()) > 0 {
		var req ResumeRequest
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "invalid request body",
			})
		}
		if req.Selector != nil {
			sel = pipeline.Selector(*req.Selector)
			if !sel.Valid() {
				return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
					"error": "selector must be 0 (back) or 1 (front)",
				})
			}
		}
	}

	if err := s.loop.Do(c.UserContext(), host.Resume{Selector: sel}); err != nil {
		return s.errorResponse(c, err)
	}
	return c.JSON(s.coord.Snapshot())
}

// handlePause delivers a pause event and waits for the result
func (s *Server) handlePause(c *fiber.Ctx) error {
	if err := s.loop.Do(c.UserContext(), host.Pause{}); err != nil {
		return s.errorResponse(c, err)
	}
	return c.JSON(s.coord.Snapshot())
}

// handleCameraPermission resolves the pending camera request. The session
// sees the result asynchronously, like a system permission dialog.
func (s *Server) handleCameraPermission(c *fiber.Ctx) error {
	var req PermissionRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid request body",
		})
	}

	s.broker.Resolve(permission.Camera, req.Granted)
	return c.Status(fiber.StatusAccepted).JSON(s.broker.Status(permission.Camera))
}

// handleRTCOffer answers a WebRTC offer from a remote viewer
func (s *Server) handleRTCOffer(c *fiber.Ctx) error {
	if s.rtc == nil {
		return c.Status(fiber.StatusNotImplemented).JSON(fiber.Map{
			"error": "webrtc viewer not configured",
		})
	}

	var offer webrtc.SessionDescription
	if err := c.BodyParser(&offer); err != nil || offer.SDP == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid session description",
		})
	}

	answer, err := s.rtc.Answer(c.UserContext(), offer)
	if err != nil {
		s.logger.Warn("webrtc negotiation failed", "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": err.Error(),
		})
	}
	return c.JSON(answer)
}

// errorResponse maps a session error to an HTTP status
func (s *Server) errorResponse(c *fiber.Ctx, err error) error {
	status := fiber.StatusInternalServerError
	kind := coordinator.Kind(err)

	switch {
	case errors.Is(err, pipeline.ErrInvalidSelector):
		status = fiber.StatusBadRequest
	case errors.Is(err, host.ErrStopped):
		status = fiber.StatusServiceUnavailable
		kind = coordinator.KindClosed
	case kind == coordinator.KindLoad, kind == coordinator.KindClosed:
		status = fiber.StatusServiceUnavailable
	case kind == coordinator.KindPermissionDenied:
		status = fiber.StatusForbidden
	}

	return c.Status(status).JSON(fiber.Map{
		"error": err.Error(),
		"kind":  kind,
	})
}

// handleCommand executes a lifecycle or permission message from a websocket
// client. Results reach the client through the status stream.
func (s *Server) handleCommand(msg *protocol.Message) {
	switch msg.Type {
	case protocol.TypeLifecycle:
		data, err := msg.GetLifecycleData()
		if err != nil {
			s.logger.Debug("bad lifecycle message", "error", err)
			return
		}
		var ev host.Event
		switch data.Action {
		case "resume":
			sel := s.coord.Session().Selector
			if data.Selector != nil {
				sel = pipeline.Selector(*data.Selector)
			}
			ev = host.Resume{Selector: sel}
		case "pause":
			ev = host.Pause{}
		default:
			s.logger.Debug("unknown lifecycle action", "action", data.Action)
			return
		}
		if err := s.loop.Post(ev); err != nil {
			s.logger.Warn("lifecycle event not delivered", "error", err)
		}

	case protocol.TypePermission:
		data, err := msg.GetPermissionData()
		if err != nil {
			s.logger.Debug("bad permission message", "error", err)
			return
		}
		s.broker.Resolve(permission.Camera, data.Granted)
	}
}

// handleStatusWS streams state and error messages
func (s *Server) handleStatusWS(c *websocket.Conn) {
	client := hub.NewClient(s.statusHub, c)
	client.OnMessage(func(data []byte) {
		msg, err := protocol.ParseMessage(data)
		if err != nil {
			return
		}
		s.handleCommand(msg)
	})
	client.Run()
}
