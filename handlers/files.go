package handlers

import (
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"ytmusicdl/services"
	"ytmusicdl/types"

	"github.com/charmbracelet/log"
	"github.com/gin-gonic/gin"
)

// FileHandler browses and streams the audio library
type FileHandler struct {
	fileService services.FileService
	libraryDir  string
	logger      *log.Logger
}

// NewFileHandler creates a new file handler rooted at libraryDir
func NewFileHandler(fs services.FileService, libraryDir string, logger *log.Logger) *FileHandler {
	return &FileHandler{
		fileService: fs,
		libraryDir:  libraryDir,
		logger:      logger,
	}
}

// ListFiles returns every audio file in the library
func (h *FileHandler) ListFiles(c *gin.Context) {
	files, err := h.fileService.ScanAudioFiles(h.libraryDir)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	if files == nil {
		files = []types.AudioFile{}
	}

	c.JSON(http.StatusOK, gin.H{
		"files": files,
		"count": len(files),
	})
}

// StreamFile serves one library file with range support
func (h *FileHandler) StreamFile(c *gin.Context) {
	requested := strings.TrimPrefix(c.Param("filepath"), "/")

	if err := h.fileService.ValidateFilePath(requested); err != nil {
		c.JSON(http.StatusForbidden, types.ErrorResponse{
			Error:   "path_forbidden",
			Message: err.Error(),
		})
		return
	}

	ext := strings.ToLower(filepath.Ext(requested))
	if !services.AudioExtensions[ext] {
		c.JSON(http.StatusForbidden, types.ErrorResponse{
			Error:   "extension_forbidden",
			Message: "only audio files can be streamed",
		})
		return
	}

	root, err := filepath.Abs(h.libraryDir)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	full := filepath.Join(root, filepath.FromSlash(requested))
	if full != root && !strings.HasPrefix(full, root+string(filepath.Separator)) {
		c.JSON(http.StatusForbidden, types.ErrorResponse{
			Error:   "path_forbidden",
			Message: "path traversal not allowed",
		})
		return
	}

	file, err := os.Open(full)
	if err != nil {
		if os.IsNotExist(err) {
			c.JSON(http.StatusNotFound, types.ErrorResponse{
				Error:   "file_not_found",
				Message: "file not found: " + requested,
			})
			return
		}
		respondError(c, h.logger, err)
		return
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	if info.IsDir() {
		badRequest(c, "path is a directory, not a file")
		return
	}

	c.Header("Content-Type", h.fileService.GetContentType(requested))
	c.Header("Cache-Control", "public, max-age=3600")
	http.ServeContent(c.Writer, c.Request, info.Name(), info.ModTime(), file)
}
