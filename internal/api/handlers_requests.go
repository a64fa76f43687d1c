package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/kikootwo/readmeabook/internal/request"
)

type createRequestBody struct {
	UserID         int64  `json:"userId"`
	Title          string `json:"title"`
	Author         string `json:"author"`
	ExternalID     string `json:"externalId"`
	RuntimeMinutes int    `json:"runtimeMinutes"`
	Type           string `json:"type"`
}

// createRequest registers a new acquisition request.
// POST /api/v1/requests
func (s *Server) createRequest(c echo.Context) error {
	var body createRequestBody
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if body.Title == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "title is required")
	}
	if body.UserID <= 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "userId is required")
	}

	req, err := s.requests.Create(c.Request().Context(), body.UserID, request.CreateInput{
		Title:          body.Title,
		Author:         body.Author,
		ExternalID:     body.ExternalID,
		RuntimeMinutes: body.RuntimeMinutes,
		Type:           request.MediaType(body.Type),
	})
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusCreated, req)
}

// createDirectRequest registers a request for a user-supplied download URL,
// bypassing search.
// POST /api/v1/requests/direct
func (s *Server) createDirectRequest(c echo.Context) error {
	var body struct {
		createRequestBody
		URL      string `json:"url"`
		Protocol string `json:"protocol"`
	}
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if body.Title == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "title is required")
	}
	if body.UserID <= 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "userId is required")
	}
	if body.URL == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "url is required")
	}

	req, err := s.requests.CreateDirect(c.Request().Context(), body.UserID, request.DirectCreateInput{
		CreateInput: request.CreateInput{
			Title:          body.Title,
			Author:         body.Author,
			ExternalID:     body.ExternalID,
			RuntimeMinutes: body.RuntimeMinutes,
			Type:           request.MediaType(body.Type),
		},
		URL:      body.URL,
		Protocol: body.Protocol,
	})
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusCreated, req)
}

// listRequests lists requests, optionally filtered by status and user.
// GET /api/v1/requests
func (s *Server) listRequests(c echo.Context) error {
	var filters request.ListFilters

	if raw := c.QueryParam("status"); raw != "" {
		status := request.Status(raw)
		filters.Status = &status
	}
	if raw := c.QueryParam("userId"); raw != "" {
		userID, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid userId")
		}
		filters.UserID = &userID
	}

	requests, err := s.requests.List(c.Request().Context(), filters)
	if err != nil {
		return mapServiceError(err)
	}
	if requests == nil {
		requests = []*request.Request{}
	}
	return c.JSON(http.StatusOK, requests)
}

// getRequest returns one request.
// GET /api/v1/requests/:id
func (s *Server) getRequest(c echo.Context) error {
	id, err := requestID(c)
	if err != nil {
		return err
	}
	req, err := s.requests.Get(c.Request().Context(), id)
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusOK, req)
}

// deleteRequest soft-deletes a request.
// DELETE /api/v1/requests/:id
func (s *Server) deleteRequest(c echo.Context) error {
	id, err := requestID(c)
	if err != nil {
		return err
	}
	if err := s.requests.Delete(c.Request().Context(), id); err != nil {
		return mapServiceError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

// approveRequest approves an awaiting_approval request.
// POST /api/v1/requests/:id/approve
func (s *Server) approveRequest(c echo.Context) error {
	return s.action(c, s.requests.Approve)
}

// denyRequest denies an awaiting_approval request.
// POST /api/v1/requests/:id/deny
func (s *Server) denyRequest(c echo.Context) error {
	return s.action(c, s.requests.Deny)
}

// cancelRequest cancels a request.
// POST /api/v1/requests/:id/cancel
func (s *Server) cancelRequest(c echo.Context) error {
	return s.action(c, s.requests.Cancel)
}

// retryRequest resumes a recoverable request.
// POST /api/v1/requests/:id/retry
func (s *Server) retryRequest(c echo.Context) error {
	return s.action(c, s.requests.Retry)
}

// getCandidates returns the ranked search results for a request.
// GET /api/v1/requests/:id/candidates
func (s *Server) getCandidates(c echo.Context) error {
	id, err := requestID(c)
	if err != nil {
		return err
	}
	candidates, err := s.requests.Candidates(c.Request().Context(), id)
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusOK, candidates)
}

// selectCandidate records a manual candidate choice and starts the download.
// POST /api/v1/requests/:id/select
func (s *Server) selectCandidate(c echo.Context) error {
	id, err := requestID(c)
	if err != nil {
		return err
	}

	var body struct {
		GUID string `json:"guid"`
	}
	if err := c.Bind(&body); err != nil || body.GUID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "guid is required")
	}

	req, err := s.requests.Select(c.Request().Context(), id, body.GUID)
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusOK, req)
}

// getRequestHistory returns a request's download history.
// GET /api/v1/requests/:id/history
func (s *Server) getRequestHistory(c echo.Context) error {
	id, err := requestID(c)
	if err != nil {
		return err
	}
	entries, err := s.requests.History(c.Request().Context(), id)
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusOK, entries)
}

// getRequestEvents returns a request's event trail.
// GET /api/v1/requests/:id/events
func (s *Server) getRequestEvents(c echo.Context) error {
	id, err := requestID(c)
	if err != nil {
		return err
	}
	events, err := s.requests.Events(c.Request().Context(), id)
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusOK, events)
}

func (s *Server) action(c echo.Context, fn func(ctx context.Context, id int64) (*request.Request, error)) error {
	id, err := requestID(c)
	if err != nil {
		return err
	}
	req, err := fn(c.Request().Context(), id)
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusOK, req)
}

func requestID(c echo.Context) (int64, error) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, echo.NewHTTPError(http.StatusBadRequest, "invalid request id")
	}
	return id, nil
}

// mapServiceError translates service errors into HTTP status codes.
func mapServiceError(err error) error {
	switch {
	case errors.Is(err, request.ErrRequestNotFound),
		errors.Is(err, request.ErrCandidateNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, request.ErrDuplicateRequest),
		errors.Is(err, request.ErrInvalidTransition):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	default:
		return err
	}
}
