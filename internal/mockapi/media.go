package mockapi

import (
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/gabriel-vasile/mimetype"
	"github.com/gin-gonic/gin"

	"github.com/milan604/feedclient/pkg/response"
)

// multipartSlack is the room left for form fields on top of the file size limit.
const multipartSlack = 1 << 20

type upload struct {
	url         string
	name        string
	contentType string
	size        int64
}

// parseMultipart reads the request's multipart form with the body capped near the upload limit.
// On failure the response has been written.
func (s *Server) parseMultipart(c *gin.Context) bool {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, s.maxUpload+multipartSlack)
	if _, err := c.MultipartForm(); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) || strings.Contains(err.Error(), "request body too large") {
			s.rejectTooLarge(c)
			return false
		}
		response.Detail(c, http.StatusBadRequest, "Multipart form parse error - "+err.Error())
		return false
	}
	return true
}

func (s *Server) rejectTooLarge(c *gin.Context) {
	response.Detail(c, http.StatusRequestEntityTooLarge,
		"File too large. Maximum size is "+humanize.IBytes(uint64(s.maxUpload))+".")
}

// receive stores an uploaded file after checking its size and sniffing its type. On failure the
// response has been written.
func (s *Server) receive(c *gin.Context, fh *multipart.FileHeader) (upload, bool) {
	if fh.Size > s.maxUpload {
		s.rejectTooLarge(c)
		return upload{}, false
	}
	f, err := fh.Open()
	if err != nil {
		response.Detail(c, http.StatusBadRequest, "The submitted file is empty or unreadable.")
		return upload{}, false
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil || len(data) == 0 {
		response.Detail(c, http.StatusBadRequest, "The submitted file is empty or unreadable.")
		return upload{}, false
	}

	mt := mimetype.Detect(data)
	name := s.storeMedia(mt.String(), mt.Extension(), data)
	return upload{
		url:         absoluteURL(c, "/media/"+name),
		name:        name,
		contentType: mt.String(),
		size:        int64(len(data)),
	}, true
}
