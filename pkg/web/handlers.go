package web

import (
	"errors"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/ubicomp-capstone/gazepatch/pkg/calib"
)

// handleHealthz reports liveness.
func (s *Server) handleHealthz(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":         "ok",
		"uptime_s":       int(time.Since(s.startedAt).Seconds()),
		"stream_clients": s.stream.ClientCount(),
	})
}

// handleTelemetryLatest returns the most recent pipeline snapshot.
func (s *Server) handleTelemetryLatest(c *fiber.Ctx) error {
	return c.JSON(s.session.Snapshot())
}

// handleState returns the full session view for the dashboard.
func (s *Server) handleState(c *fiber.Ctx) error {
	cal := s.session.Calibrator()
	pending := s.session.Pending()

	state := fiber.Map{
		"snapshot": s.session.Snapshot(),
		"calibration": fiber.Map{
			"transform":    cal.Transform(),
			"sample_count": cal.SampleCount(),
			"identity":     cal.Transform().IsIdentity(),
		},
	}
	if pending != nil {
		state["pending_swap"] = fiber.Map{
			"target":     pending.TargetSector.Name(),
			"focus":      pending.FocusSector.Name(),
			"created_at": pending.CreatedAt,
		}
	}
	return c.JSON(state)
}

// handleGetCalibration returns the active transform.
func (s *Server) handleGetCalibration(c *fiber.Ctx) error {
	cal := s.session.Calibrator()
	return c.JSON(fiber.Map{
		"transform":    cal.Transform(),
		"sample_count": cal.SampleCount(),
		"identity":     cal.Transform().IsIdentity(),
	})
}

// SolveCalibrationRequest carries the capture UI's finished sample list.
type SolveCalibrationRequest struct {
	Samples []calib.Sample `json:"samples"`
}

// handleSolveCalibration solves a new transform from the posted samples.
// On failure the previous transform stays active and the error is
// reported to the operator. A successful solve goes through the session
// so any swap computed under the old transform is superseded.
func (s *Server) handleSolveCalibration(c *fiber.Ctx) error {
	var req SolveCalibrationRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid request body",
		})
	}

	transform, err := s.session.SolveCalibration(req.Samples)
	if err != nil {
		status := fiber.StatusUnprocessableEntity
		if errors.Is(err, calib.ErrTooFewSamples) {
			status = fiber.StatusBadRequest
		}
		return c.Status(status).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	s.logger.Info("calibration solved", "samples", len(req.Samples))
	return c.JSON(fiber.Map{
		"transform":    transform,
		"sample_count": len(req.Samples),
	})
}

// handleDeleteCalibration resets the active transform to identity,
// drops the state that depended on it and removes the persisted state.
func (s *Server) handleDeleteCalibration(c *fiber.Ctx) error {
	s.session.ClearCalibration()
	if err := s.events.DeleteCalibration(); err != nil {
		s.logger.Error("persisted calibration not deleted", "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": err.Error(),
		})
	}
	return c.JSON(fiber.Map{"status": "reset"})
}

// handleEvents returns the session log, newest first. Queued writes are
// flushed first so the operator sees everything up to this request.
func (s *Server) handleEvents(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", 100)
	s.events.Flush()
	events, err := s.events.Events(limit)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": err.Error(),
		})
	}
	return c.JSON(fiber.Map{"events": events})
}

// handleReset drops transient pipeline state for a fresh trial.
func (s *Server) handleReset(c *fiber.Ctx) error {
	s.session.Reset()
	return c.JSON(fiber.Map{"status": "reset"})
}

// handleDisplay serves the currently rendered image.
func (s *Server) handleDisplay(c *fiber.Ctx) error {
	image := s.session.Display().Image()
	if len(image) == 0 {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "no display image loaded",
		})
	}
	c.Set("Content-Type", "image/png")
	c.Set("X-Display-Version", strconv.FormatUint(s.session.Display().Version(), 10))
	return c.Send(image)
}
