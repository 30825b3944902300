package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/naveenchin/tt-backend/pkgs/fault"
	"github.com/naveenchin/tt-backend/pkgs/fields"
	"github.com/naveenchin/tt-backend/pkgs/media"
	"github.com/naveenchin/tt-backend/pkgs/submission"
	log "github.com/sirupsen/logrus"
)

// multipartOverhead covers form fields and part headers on top of file data
const multipartOverhead = 1 << 20

type stageRequest struct {
	ProductID     string        `json:"productId"`
	KeyValuePairs []fields.Pair `json:"keyValuePairs"`
	Comments      string        `json:"comments"`
}

type stageResponse struct {
	TransactionHash string `json:"transactionHash"`
	EventID         string `json:"eventId"`
}

type errorResponse struct {
	Error    string `json:"error"`
	Category string `json:"category"`
}

// HandleSubmitStage accepts a JSON body or a multipart form with media files
func (s *Server) HandleSubmitStage(c *gin.Context) {
	var (
		req *submission.Request
		err error
	)
	if strings.HasPrefix(c.ContentType(), "multipart/") {
		req, err = s.parseMultipart(c)
	} else {
		req, err = parseJSON(c)
	}
	if err != nil {
		respondError(c, err)
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), s.opts.SubmitTimeout)
	defer cancel()

	record, err := s.submitter.Submit(ctx, req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, stageResponse{
		TransactionHash: record.TransactionHash,
		EventID:         record.EventID,
	})
}

func parseJSON(c *gin.Context) (*submission.Request, error) {
	var body stageRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		return nil, fault.Wrap(fault.Validation, "parse request", err)
	}
	return &submission.Request{
		ProductID: body.ProductID,
		Fields:    body.KeyValuePairs,
		Comments:  body.Comments,
	}, nil
}

func (s *Server) parseMultipart(c *gin.Context) (*submission.Request, error) {
	limit := s.opts.MaxMediaBytes*int64(maxInt(s.opts.MaxMediaFiles, 1)) + multipartOverhead
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit)

	form, err := c.MultipartForm()
	if err != nil {
		return nil, fault.Wrap(fault.Validation, "parse form", err)
	}

	req := &submission.Request{
		ProductID: formValue(form, "productId"),
		Comments:  formValue(form, "comments"),
	}

	if raw := formValue(form, "keyValuePairs"); strings.TrimSpace(raw) != "" {
		if err := json.Unmarshal([]byte(raw), &req.Fields); err != nil {
			return nil, fault.Newf(fault.Validation, "parse form", "keyValuePairs must be a JSON array of {key, value}: %v", err)
		}
	}

	files := form.File["media"]
	if len(files) > s.opts.MaxMediaFiles {
		return nil, fault.Newf(fault.Validation, "parse form", "at most %d media files are accepted", s.opts.MaxMediaFiles)
	}
	for _, fh := range files {
		blob, err := s.readBlob(fh)
		if err != nil {
			return nil, err
		}
		req.Media = append(req.Media, blob)
	}
	return req, nil
}

func (s *Server) readBlob(fh *multipart.FileHeader) (media.Blob, error) {
	if fh.Size > s.opts.MaxMediaBytes {
		return media.Blob{}, fault.Newf(fault.Validation, "read media", "media file %q exceeds %d bytes", fh.Filename, s.opts.MaxMediaBytes)
	}
	f, err := fh.Open()
	if err != nil {
		return media.Blob{}, fault.Wrap(fault.Validation, "read media", err)
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, s.opts.MaxMediaBytes+1))
	if err != nil {
		return media.Blob{}, fault.Wrap(fault.Validation, "read media", err)
	}
	if int64(len(data)) > s.opts.MaxMediaBytes {
		return media.Blob{}, fault.Newf(fault.Validation, "read media", "media file %q exceeds %d bytes", fh.Filename, s.opts.MaxMediaBytes)
	}
	return media.Blob{
		Name:        fh.Filename,
		ContentType: fh.Header.Get("Content-Type"),
		Data:        data,
	}, nil
}

// HandleGetStages returns the product's history in timestamp order
func (s *Server) HandleGetStages(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), s.opts.ReadTimeout)
	defer cancel()

	hist, err := s.history.Reconstruct(ctx, c.Param("productId"))
	if err != nil {
		respondError(c, err)
		return
	}
	if len(hist.Skipped) > 0 {
		c.Header("X-Partial-Result", strconv.Itoa(len(hist.Skipped)))
	}
	c.JSON(http.StatusOK, hist)
}

// HandleGetMedia streams a stored media file
func (s *Server) HandleGetMedia(c *gin.Context) {
	if s.media == nil {
		c.JSON(http.StatusNotFound, errorResponse{Error: "media store not configured", Category: string(fault.Validation)})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), s.opts.ReadTimeout)
	defer cancel()

	data, err := s.media.Retrieve(ctx, c.Param("cid"))
	if err != nil {
		if strings.Contains(err.Error(), "invalid CID") {
			respondError(c, fault.Wrap(fault.Validation, "retrieve media", err))
			return
		}
		respondError(c, fault.Classify("retrieve media", err, fault.Read))
		return
	}
	c.Header("Cache-Control", "public, max-age=31536000, immutable")
	c.Data(http.StatusOK, http.DetectContentType(data), data)
}

// HandleRecentSubmissions lists event ids most recently submitted by this relay
func (s *Server) HandleRecentSubmissions(c *gin.Context) {
	if s.index == nil {
		c.JSON(http.StatusOK, gin.H{"eventIds": []string{}})
		return
	}
	limit, _ := strconv.ParseInt(c.DefaultQuery("limit", "50"), 10, 64)
	if limit <= 0 || limit > 500 {
		limit = 50
	}

	ids, err := s.index.RecentSubmissions(c.Request.Context(), limit)
	if err != nil {
		respondError(c, fault.Classify("list submissions", err, fault.Read))
		return
	}
	if ids == nil {
		ids = []string{}
	}
	c.JSON(http.StatusOK, gin.H{"eventIds": ids})
}

// HandleHealth reports chain and media store reachability
func (s *Server) HandleHealth(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	status := http.StatusOK
	checks := gin.H{}

	if s.chainCheck != nil {
		if err := s.chainCheck(ctx); err != nil {
			checks["chain"] = err.Error()
			status = http.StatusServiceUnavailable
		} else {
			checks["chain"] = "ok"
		}
	}
	if s.media != nil {
		if s.media.IsAvailable(ctx) {
			checks["ipfs"] = "ok"
		} else {
			// media is optional for submissions without attachments
			checks["ipfs"] = "unavailable"
		}
	}

	state := "healthy"
	if status != http.StatusOK {
		state = "unhealthy"
	}
	c.JSON(status, gin.H{"status": state, "checks": checks, "timestamp": time.Now().UTC()})
}

// StatusFor maps an error category to an HTTP status
func StatusFor(kind fault.Kind) int {
	switch kind {
	case fault.Validation:
		return http.StatusBadRequest
	case fault.Estimation, fault.Revert:
		return http.StatusUnprocessableEntity
	case fault.InsufficientFunds, fault.Connectivity:
		return http.StatusServiceUnavailable
	case fault.Broadcast, fault.Read, fault.PartialFetch:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func respondError(c *gin.Context, err error) {
	kind := fault.KindOf(err)

	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		c.JSON(http.StatusRequestEntityTooLarge, errorResponse{Error: err.Error(), Category: string(fault.Validation)})
		return
	}

	msg := err.Error()
	var fe *fault.Error
	if errors.As(err, &fe) {
		msg = fe.Message()
	}
	if kind == fault.Internal {
		log.WithError(err).WithField("path", c.FullPath()).Error("Request failed")
		msg = "internal error"
	}
	c.JSON(StatusFor(kind), errorResponse{Error: msg, Category: string(kind)})
}

func formValue(form *multipart.Form, key string) string {
	if values := form.Value[key]; len(values) > 0 {
		return values[0]
	}
	return ""
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
