package handlers

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/memohai/omnirelay/internal/media"
)

// AssetOpener reads stored attachments.
type AssetOpener interface {
	Open(ctx context.Context, name string) (io.ReadCloser, media.Asset, error)
}

type FilesHandler struct {
	logger *slog.Logger
	assets AssetOpener
}

func NewFilesHandler(log *slog.Logger, assets AssetOpener) *FilesHandler {
	return &FilesHandler{
		logger: log.With(slog.String("handler", "files")),
		assets: assets,
	}
}

func (h *FilesHandler) Register(e *echo.Echo) {
	e.GET("/get_file/:name", h.GetFile)
}

// GetFile godoc
// @Summary Download a stored attachment
// @Tags files
// @Param name path string true "Attachment name"
// @Success 200 {file} binary
// @Failure 404 {object} ErrorResponse
// @Router /get_file/{name} [get]
func (h *FilesHandler) GetFile(c echo.Context) error {
	name := c.Param("name")
	reader, asset, err := h.assets.Open(c.Request().Context(), name)
	if err != nil {
		if errors.Is(err, media.ErrAssetNotFound) || errors.Is(err, media.ErrInvalidName) {
			return echo.NewHTTPError(http.StatusNotFound, "file not found")
		}
		h.logger.Error("open attachment failed", slog.String("name", name), slog.Any("error", err))
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	defer func() {
		_ = reader.Close()
	}()
	mime := asset.Mime
	if mime == "" {
		mime = echo.MIMEOctetStream
	}
	c.Response().Header().Set("Cache-Control", "public, max-age=31536000, immutable")
	if asset.SizeBytes > 0 {
		c.Response().Header().Set(echo.HeaderContentLength, strconv.FormatInt(asset.SizeBytes, 10))
	}
	return c.Stream(http.StatusOK, mime, reader)
}
