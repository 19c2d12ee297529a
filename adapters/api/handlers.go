package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"github.com/gustavo-detarso/atestmed-defender-sub000/adapters/report"
	"github.com/gustavo-detarso/atestmed-defender-sub000/app"
	"github.com/gustavo-detarso/atestmed-defender-sub000/domain/audit"
	"github.com/gustavo-detarso/atestmed-defender-sub000/domain/core"
	"github.com/gustavo-detarso/atestmed-defender-sub000/internal/errors"
)

const formatJSON = "json"

// auditParams are the request fields shared by table and period audits.
// Params falls back to the configured defaults when omitted.
type auditParams struct {
	Params    *audit.ImpactParameters `json:"params,omitempty"`
	Selection []core.EntityID         `json:"selection,omitempty"`
	Cutoff    *float64                `json:"cutoff,omitempty"`
	Options   app.AuditOptions        `json:"options"`
}

// auditBody posts the observation table inline
type auditBody struct {
	Table    *audit.ObservationTable `json:"table" validate:"required"`
	Baseline audit.Baseline          `json:"baseline" validate:"gte=0,lte=1"`
	auditParams
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// handleRunAudit audits the table posted in the body
func (s *Server) handleRunAudit(c *gin.Context) {
	format, ok := s.format(c)
	if !ok {
		return
	}
	var body auditBody
	if err := c.ShouldBindJSON(&body); err != nil {
		s.writeError(c, errors.InvalidInput("malformed audit request: "+err.Error()))
		return
	}
	if err := s.validate.Struct(body); err != nil {
		s.writeError(c, validationError(err))
		return
	}

	req := s.request(body.auditParams)
	req.Table = body.Table
	req.Baseline = body.Baseline
	rep, err := s.service.Run(c.Request.Context(), req)
	if err != nil {
		s.writeError(c, err)
		return
	}
	s.writeReport(c, rep, format)
}

// handleRunPeriod audits a period loaded from the observation source
func (s *Server) handleRunPeriod(c *gin.Context) {
	format, ok := s.format(c)
	if !ok {
		return
	}
	var body auditParams
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&body); err != nil {
			s.writeError(c, errors.InvalidInput("malformed audit request: "+err.Error()))
			return
		}
	}
	if err := s.validate.Struct(body); err != nil {
		s.writeError(c, validationError(err))
		return
	}

	rep, err := s.service.RunPeriod(c.Request.Context(), s.source, c.Param("period"), s.request(body))
	if err != nil {
		s.writeError(c, err)
		return
	}
	s.writeReport(c, rep, format)
}

// handleGetRun returns a stored report as JSON
func (s *Server) handleGetRun(c *gin.Context) {
	id, err := core.ParseRunID(c.Param("id"))
	if err != nil {
		s.writeError(c, errors.InvalidInput(err.Error()))
		return
	}
	run, err := s.store.GetRun(c.Request.Context(), id)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.Data(http.StatusOK, "application/json; charset=utf-8", run.Report)
}

// request builds an AuditRequest, filling omitted params from the defaults
func (s *Server) request(p auditParams) app.AuditRequest {
	req := app.AuditRequest{
		Selection: p.Selection,
		Cutoff:    p.Cutoff,
		Options:   p.Options,
	}
	if p.Params != nil {
		req.Params = *p.Params
	} else {
		d := s.service.Defaults()
		req.Params = audit.ImpactParameters{Alpha: d.Alpha, MinN: d.MinN, CutN: d.CutN}
	}
	return req
}

// format reads ?format=, writing a 400 when it is unknown
func (s *Server) format(c *gin.Context) (string, bool) {
	format := c.DefaultQuery("format", formatJSON)
	switch format {
	case formatJSON, report.FormatMarkdown, report.FormatHTML:
		return format, true
	}
	s.writeError(c, errors.InvalidParameter("unknown format %q, expected json, markdown or html", format))
	return "", false
}

func (s *Server) writeReport(c *gin.Context, rep *app.AuditReport, format string) {
	if format == formatJSON {
		c.JSON(http.StatusOK, rep)
		return
	}
	body, contentType, err := s.renderer.Render(rep, format)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.Data(http.StatusOK, contentType, body)
}

func (s *Server) writeError(c *gin.Context, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("%s %s: %v", c.Request.Method, c.Request.URL.Path, err)
	}
	c.JSON(status, gin.H{"error": err.Error(), "code": errors.GetCode(err)})
}

// statusFor maps an AppError code to an HTTP status
func statusFor(err error) int {
	switch errors.GetCode(err) {
	case errors.CodeInvalidInput, errors.CodeInvalidParameter:
		return http.StatusBadRequest
	case errors.CodeNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func validationError(err error) error {
	if verrs, ok := err.(validator.ValidationErrors); ok && len(verrs) > 0 {
		f := verrs[0]
		return errors.InvalidInput("field " + f.Namespace() + " failed on " + f.Tag())
	}
	return errors.WithCode(errors.CodeInvalidInput, err)
}
