package main

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"seizure-detection/edf"
	"seizure-detection/eeg"
	"seizure-detection/export"
	"seizure-detection/inference"
	"seizure-detection/models"
	"seizure-detection/utils"

	"github.com/mdobak/go-xerrors"
)

type apiError struct {
	Message string `json:"message"`
}

const (
	maxUploadBytes = 256 << 20

	// rangeLayout renders file spans in the /api/ranges response.
	rangeLayout = "2006-01-02T15:04:05"

	xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

// timeFieldLayouts are accepted for the optional analysis bounds, most
// specific first.
var timeFieldLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	if w.Header().Get("Access-Control-Allow-Origin") == "" {
		w.Header().Set("Access-Control-Allow-Origin", "*")
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("failed to encode JSON response: %v", err)
	}
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, apiError{Message: message})
}

// collectUploads merges the multi-file field with the legacy single
// file field, preserving upload order.
func collectUploads(form *multipart.Form) []*multipart.FileHeader {
	if form == nil || form.File == nil {
		return nil
	}
	uploads := append([]*multipart.FileHeader(nil), form.File["edf_files"]...)
	uploads = append(uploads, form.File["edf_file"]...)
	return uploads
}

// parseTimeField reads an optional form timestamp. An empty value and
// the literal "null" sent by form submissions both mean unset.
func parseTimeField(raw string) (*time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" || strings.EqualFold(raw, "null") {
		return nil, nil
	}
	for _, layout := range timeFieldLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			t = t.UTC()
			return &t, nil
		}
	}
	return nil, fmt.Errorf("Invalid date-time value: %s", raw)
}

func decodeUpload(fileHeader *multipart.FileHeader, channel int) (eeg.Recording, error) {
	src, err := fileHeader.Open()
	if err != nil {
		return eeg.Recording{}, fmt.Errorf("open upload: %w", err)
	}
	defer src.Close()

	rec, err := edf.Decode(src, channel)
	if err != nil {
		return eeg.Recording{}, err
	}
	return eeg.Recording{
		Filename: fileHeader.Filename,
		Signal:   rec.Samples,
		Times:    rec.Times,
		Start:    rec.Header.Start,
	}, nil
}

func newRangesHandler(channel int) http.HandlerFunc {
	logger := utils.GetLogger()
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := context.Background()

		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		w.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Credentials", "true")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		if r.Method != http.MethodPost {
			writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}

		if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
			logger.ErrorContext(ctx, "failed to parse multipart form", slog.Any("error", err))
			writeJSONError(w, http.StatusBadRequest, "invalid upload payload")
			return
		}

		uploads := collectUploads(r.MultipartForm)
		if len(uploads) == 0 {
			writeJSONError(w, http.StatusBadRequest, "Please upload at least one EDF file.")
			return
		}

		var files []models.FileRange
		var overallStart, overallEnd time.Time
		for _, fileHeader := range uploads {
			// range discovery tolerates stray uploads, unlike processing
			if !strings.EqualFold(filepath.Ext(fileHeader.Filename), ".edf") || fileHeader.Size == 0 {
				continue
			}
			rec, err := decodeUpload(fileHeader, channel)
			if err != nil {
				msg := fmt.Sprintf("Failed to read EDF file '%s': %v", fileHeader.Filename, err)
				err := xerrors.New(err)
				logger.ErrorContext(ctx, "failed to read uploaded EDF", slog.Any("error", err))
				writeJSONError(w, http.StatusBadRequest, msg)
				return
			}
			// files without a clock cannot be placed on the shared timeline
			if !rec.HasClock() || len(rec.Times) == 0 {
				continue
			}
			fileStart := rec.Start.Add(time.Duration(rec.Times[0] * float64(time.Second)))
			fileEnd := rec.Start.Add(time.Duration(rec.Times[len(rec.Times)-1] * float64(time.Second)))
			files = append(files, models.FileRange{
				Name:  fileHeader.Filename,
				Start: fileStart.Format(rangeLayout),
				End:   fileEnd.Format(rangeLayout),
			})
			if overallStart.IsZero() || fileStart.Before(overallStart) {
				overallStart = fileStart
			}
			if overallEnd.IsZero() || fileEnd.After(overallEnd) {
				overallEnd = fileEnd
			}
		}

		if len(files) == 0 {
			writeJSONError(w, http.StatusBadRequest, "No EDF files with valid measurement timestamps were found.")
			return
		}

		writeJSON(w, http.StatusOK, models.RangesResponse{
			Files:        files,
			OverallStart: overallStart.Format(rangeLayout),
			OverallEnd:   overallEnd.Format(rangeLayout),
		})
	}
}

func newProcessHandler(pipeline *eeg.Pipeline, channel int) http.HandlerFunc {
	logger := utils.GetLogger()
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := context.Background()

		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		w.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Credentials", "true")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		if r.Method != http.MethodPost {
			writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}

		if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
			logger.ErrorContext(ctx, "failed to parse multipart form", slog.Any("error", err))
			writeJSONError(w, http.StatusBadRequest, "invalid upload payload")
			return
		}

		uploads := collectUploads(r.MultipartForm)
		if len(uploads) == 0 {
			writeJSONError(w, http.StatusBadRequest, "Please upload at least one EDF file.")
			return
		}
		for _, fileHeader := range uploads {
			if !strings.EqualFold(filepath.Ext(fileHeader.Filename), ".edf") {
				writeJSONError(w, http.StatusBadRequest, fmt.Sprintf("File '%s' is not an EDF recording.", fileHeader.Filename))
				return
			}
			if fileHeader.Size == 0 {
				writeJSONError(w, http.StatusBadRequest, fmt.Sprintf("File '%s' is empty.", fileHeader.Filename))
				return
			}
		}

		windowLength, err := strconv.Atoi(strings.TrimSpace(r.FormValue("window_length")))
		if err != nil || windowLength <= 0 {
			writeJSONError(w, http.StatusBadRequest, "Window length must be a positive integer.")
			return
		}

		startTime, err := parseTimeField(r.FormValue("analysis_start"))
		if err != nil {
			writeJSONError(w, http.StatusBadRequest, err.Error())
			return
		}
		endTime, err := parseTimeField(r.FormValue("analysis_end"))
		if err != nil {
			writeJSONError(w, http.StatusBadRequest, err.Error())
			return
		}
		if startTime != nil && endTime != nil && startTime.After(*endTime) {
			writeJSONError(w, http.StatusBadRequest, "Analysis start must be before end time.")
			return
		}

		labels := export.DefaultLabels()
		if gtFiles := r.MultipartForm.File["gt_excel"]; len(gtFiles) > 0 {
			src, err := gtFiles[0].Open()
			if err != nil {
				logger.WarnContext(ctx, "failed to open reference table, using default labels", slog.Any("error", err))
			} else {
				labels, err = export.LabelsFromReference(src)
				if err != nil {
					logger.WarnContext(ctx, "failed to read reference table, using default labels", slog.Any("error", err))
				}
				src.Close()
			}
		}

		log.Printf("[HTTP] Process request: files=%d, windowLength=%d\n", len(uploads), windowLength)
		started := time.Now()

		recordings := make([]eeg.Recording, 0, len(uploads))
		for i, fileHeader := range uploads {
			rec, err := decodeUpload(fileHeader, channel)
			if err != nil {
				msg := fmt.Sprintf("Failed to read EDF file '%s': %v", fileHeader.Filename, err)
				err := xerrors.New(err)
				logger.ErrorContext(ctx, "failed to read uploaded EDF", slog.Any("error", err))
				writeJSONError(w, http.StatusBadRequest, msg)
				return
			}
			rec.Order = i
			recordings = append(recordings, rec)
		}

		results, err := pipeline.Process(recordings, windowLength, startTime, endTime)
		if err != nil {
			if errors.Is(err, eeg.ErrEmptyResult) || errors.Is(err, eeg.ErrWindowLength) {
				writeJSONError(w, http.StatusBadRequest, err.Error())
				return
			}
			err := xerrors.New(err)
			logger.ErrorContext(ctx, "failed to analyse recordings", slog.Any("error", err))
			writeJSONError(w, http.StatusInternalServerError, "failed to analyse recordings")
			return
		}

		wb, err := export.Workbook(results, labels)
		if err != nil {
			err := xerrors.New(err)
			logger.ErrorContext(ctx, "failed to build export workbook", slog.Any("error", err))
			writeJSONError(w, http.StatusInternalServerError, "failed to build export workbook")
			return
		}
		defer wb.Close()

		var buf bytes.Buffer
		if err := wb.Write(&buf); err != nil {
			err := xerrors.New(err)
			logger.ErrorContext(ctx, "failed to serialize workbook", slog.Any("error", err))
			writeJSONError(w, http.StatusInternalServerError, "failed to serialize workbook")
			return
		}

		intervalCount := 0
		for _, res := range results {
			intervalCount += len(res.Intervals)
		}
		latency := time.Since(started).Seconds() * 1000
		log.Printf("[HTTP] Analysis complete: files=%d, intervals=%d, latency=%.2fms\n",
			len(results), intervalCount, latency)

		w.Header().Set("Content-Type", xlsxContentType)
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", export.Filename(results)))
		w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
		w.WriteHeader(http.StatusOK)
		if _, err := buf.WriteTo(w); err != nil {
			log.Printf("failed to stream workbook: %v", err)
		}
	}
}

func newModelStatsHandler(model eeg.Model) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Credentials", "true")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		if r.Method != http.MethodGet {
			writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}

		provider, ok := model.(eeg.StatsProvider)
		if !ok {
			writeJSONError(w, http.StatusNotFound, "model statistics are unavailable for this backend")
			return
		}
		writeJSON(w, http.StatusOK, provider.Stats())
	}
}

func serve(protocol, port string) {
	protocol = strings.ToLower(protocol)

	channelStr := utils.GetEnv("EEG_CHANNEL", "0")
	channel, err := strconv.Atoi(channelStr)
	if err != nil || channel < 0 {
		log.Fatalf("invalid EEG_CHANNEL value '%s'", channelStr)
	}

	batchSizeStr := utils.GetEnv("EEG_BATCH_SIZE", strconv.Itoa(eeg.DefaultBatchSize))
	batchSize, err := strconv.Atoi(batchSizeStr)
	if err != nil {
		log.Fatalf("invalid EEG_BATCH_SIZE value '%s': %v", batchSizeStr, err)
	}

	var model eeg.Model
	backend := strings.ToLower(utils.GetEnv("EEG_MODEL_BACKEND", "knn"))
	switch backend {
	case "knn":
		modelPath := utils.GetEnv("EEG_MODEL_PATH", filepath.Join("eeg", "prototypes.json"))
		neighbourCountStr := utils.GetEnv("EEG_MODEL_K", "5")
		k, err := strconv.Atoi(neighbourCountStr)
		if err != nil {
			log.Fatalf("invalid EEG_MODEL_K value '%s': %v", neighbourCountStr, err)
		}
		knn, err := eeg.NewKNNModelFromFile(modelPath, k)
		if err != nil {
			log.Fatalf("failed to load seizure model: %v", err)
		}
		stats := knn.Stats()
		log.Printf("Loaded %d prototypes across %d labels (k=%d)", stats.PrototypeCount, stats.LabelCount, stats.Neighbors)
		model = knn
	case "remote":
		serviceURL := utils.GetEnv("SCORING_SERVICE_URL", "http://localhost:5002")
		client := inference.NewClient(serviceURL)
		if err := client.Health(); err != nil {
			log.Printf("Warning: scoring service at %s is not responding: %v", serviceURL, err)
		}
		model = client
	default:
		log.Fatalf("unknown EEG_MODEL_BACKEND value '%s' (expected knn or remote)", backend)
	}

	pipeline := eeg.NewPipeline(eeg.NewClassifier(model, batchSize))

	serveHTTPS := protocol == "https"

	mux := http.NewServeMux()
	mux.HandleFunc("/api/ranges", newRangesHandler(channel))
	mux.HandleFunc("/api/process", newProcessHandler(pipeline, channel))
	mux.HandleFunc("/api/model", newModelStatsHandler(model))

	serveHTTP(serveHTTPS, port, mux)
}

func serveHTTP(serveHTTPS bool, port string, handler http.Handler) {
	if serveHTTPS {
		httpsAddr := ":" + port
		httpsServer := &http.Server{
			Addr: httpsAddr,
			TLSConfig: &tls.Config{
				MinVersion: tls.VersionTLS12,
			},
			Handler: handler,
		}

		cert_key := utils.GetEnv("CERT_KEY", "")
		cert_file := utils.GetEnv("CERT_FILE", "")
		if cert_key == "" || cert_file == "" {
			log.Fatal("Missing cert")
		}

		log.Printf("Starting HTTPS server on %s\n", httpsAddr)
		if err := httpsServer.ListenAndServeTLS(cert_file, cert_key); err != nil {
			log.Fatalf("HTTPS server ListenAndServeTLS: %v", err)
		}
	}

	log.Printf("Starting HTTP server on port %v", port)
	if err := http.ListenAndServe(":"+port, handler); err != nil {
		log.Fatalf("HTTP server ListenAndServe: %v", err)
	}
}
