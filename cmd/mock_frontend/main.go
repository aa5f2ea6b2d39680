package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"mime"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"

	"seizure-detection/models"
	"seizure-detection/utils"
)

func main() {
	dir := flag.String("dir", "recordings", "Directory containing EDF files to upload (ignored if -file is set)")
	file := flag.String("file", "", "Single EDF file to upload (overrides -dir)")
	baseURL := flag.String("url", "http://localhost:8000", "Server base URL")
	window := flag.Int("window", 256, "Window length in samples")
	start := flag.String("start", "", "Optional analysis start (ISO format)")
	end := flag.String("end", "", "Optional analysis end (ISO format)")
	gt := flag.String("gt", "", "Optional reference xlsx whose header names the output columns")
	out := flag.String("out", "exports", "Directory for the downloaded workbook")
	flag.Parse()

	files, err := resolveFiles(*file, *dir)
	if err != nil {
		log.Fatalf("failed to resolve files: %v", err)
	}
	if len(files) == 0 {
		log.Fatalf("no EDF files found (file=%s dir=%s)", *file, *dir)
	}

	fmt.Printf("Uploading %d recording(s) to %s\n\n", len(files), *baseURL)

	if err := fetchRanges(files, *baseURL); err != nil {
		log.Printf("ranges request failed: %v\n", err)
	}

	if err := runProcess(files, *baseURL, *window, *start, *end, *gt, *out); err != nil {
		log.Fatalf("process request failed: %v", err)
	}
}

func resolveFiles(single, dir string) ([]string, error) {
	if single != "" {
		return []string{single}, nil
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	files := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if filepath.Ext(entry.Name()) != ".edf" && filepath.Ext(entry.Name()) != ".EDF" {
			continue
		}
		files = append(files, filepath.Join(dir, entry.Name()))
	}
	return files, nil
}

// buildUpload assembles the multipart body shared by both endpoints.
func buildUpload(files []string, fields map[string]string, gtPath string) (*bytes.Buffer, string, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	for _, path := range files {
		part, err := writer.CreateFormFile("edf_files", filepath.Base(path))
		if err != nil {
			return nil, "", fmt.Errorf("create form file: %w", err)
		}
		src, err := os.Open(path)
		if err != nil {
			return nil, "", fmt.Errorf("open %s: %w", path, err)
		}
		if _, err := io.Copy(part, src); err != nil {
			src.Close()
			return nil, "", fmt.Errorf("copy %s: %w", path, err)
		}
		src.Close()
	}

	for key, value := range fields {
		if value == "" {
			continue
		}
		if err := writer.WriteField(key, value); err != nil {
			return nil, "", fmt.Errorf("write field %s: %w", key, err)
		}
	}

	if gtPath != "" {
		part, err := writer.CreateFormFile("gt_excel", filepath.Base(gtPath))
		if err != nil {
			return nil, "", fmt.Errorf("create reference part: %w", err)
		}
		src, err := os.Open(gtPath)
		if err != nil {
			return nil, "", fmt.Errorf("open %s: %w", gtPath, err)
		}
		if _, err := io.Copy(part, src); err != nil {
			src.Close()
			return nil, "", fmt.Errorf("copy %s: %w", gtPath, err)
		}
		src.Close()
	}

	if err := writer.Close(); err != nil {
		return nil, "", fmt.Errorf("close multipart writer: %w", err)
	}
	return body, writer.FormDataContentType(), nil
}

func fetchRanges(files []string, baseURL string) error {
	body, contentType, err := buildUpload(files, nil, "")
	if err != nil {
		return err
	}

	resp, err := http.Post(baseURL+"/api/ranges", contentType, body)
	if err != nil {
		return fmt.Errorf("post ranges request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= 300 {
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, string(raw))
	}

	var ranges models.RangesResponse
	if err := json.Unmarshal(raw, &ranges); err != nil {
		return fmt.Errorf("decode ranges response: %w", err)
	}

	fmt.Println("Measurement ranges:")
	for _, f := range ranges.Files {
		fmt.Printf("  %s: %s .. %s\n", f.Name, f.Start, f.End)
	}
	fmt.Printf("Overall: %s .. %s\n\n", ranges.OverallStart, ranges.OverallEnd)
	return nil
}

func runProcess(files []string, baseURL string, window int, start, end, gtPath, outDir string) error {
	fields := map[string]string{
		"window_length":  fmt.Sprintf("%d", window),
		"analysis_start": start,
		"analysis_end":   end,
	}
	body, contentType, err := buildUpload(files, fields, gtPath)
	if err != nil {
		return err
	}

	resp, err := http.Post(baseURL+"/api/process", contentType, body)
	if err != nil {
		return fmt.Errorf("post process request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= 300 {
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, string(raw))
	}

	filename := "predictions.xlsx"
	if _, params, err := mime.ParseMediaType(resp.Header.Get("Content-Disposition")); err == nil {
		if name := params["filename"]; name != "" {
			filename = name
		}
	}

	if err := utils.CreateFolder(outDir); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	outPath := filepath.Join(outDir, filename)
	if err := os.WriteFile(outPath, raw, 0644); err != nil {
		return fmt.Errorf("save workbook: %w", err)
	}

	fmt.Printf("Saved predictions: %s (%d bytes)\n", outPath, len(raw))
	return nil
}
