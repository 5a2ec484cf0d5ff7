package http

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
)

// maxScanImageBytes bounds the uploaded receipt photo size.
const maxScanImageBytes = 10 << 20

// handleScan extracts a deposit form suggestion from a photographed
// transfer receipt. Disabled unless a scanner was configured.
func (s *Server) handleScan(w http.ResponseWriter, r *http.Request) {
	if resp := RequirePOST(r); resp != nil {
		resp.Write(w)
		return
	}
	if s.scanner == nil {
		http.Error(w, "receipt scanning is not enabled", http.StatusNotImplemented)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxScanImageBytes)
	if err := r.ParseMultipartForm(maxScanImageBytes); err != nil {
		BadRequestError("Imagen demasiado grande o formato inválido").Write(w)
		return
	}

	file, header, err := r.FormFile("image")
	if err != nil {
		BadRequestError("Falta la imagen del comprobante").Write(w)
		return
	}
	defer file.Close()

	image, err := io.ReadAll(file)
	if err != nil {
		InternalServerError("No se pudo leer la imagen").Write(w)
		return
	}

	mimeType := header.Header.Get("Content-Type")
	if mimeType == "" {
		mimeType = http.DetectContentType(image)
	}

	suggestion, err := s.scanner.Scan(r.Context(), image, mimeType)
	if err != nil {
		slog.ErrorContext(r.Context(), "Receipt scan failed", "error", err, "mime_type", mimeType)
		InternalServerError("No se pudo leer el comprobante").Write(w)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(suggestion); err != nil {
		slog.ErrorContext(r.Context(), "Scan response encoding failed", "error", err)
	}
}
