package api

import (
	"bytes"
	"fmt"
	"mime/multipart"
	"net/textproto"
	"path/filepath"
	"strings"

	"github.com/mihaimyh/atscheck/pkg/atscheck"
)

// Multipart field names of the analysis form
const (
	FieldResume         = "resume"
	FieldAction         = "action"
	FieldJobDescription = "job_desc"
	FieldCompanyName    = "company_name"
)

// encodeAnalyzeForm builds the multipart body of an analysis submission
func encodeAnalyzeForm(req atscheck.AnalyzeRequest) ([]byte, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	name := filepath.Base(req.File.Name)
	if name == "" || name == "." || name == string(filepath.Separator) {
		name = "resume.pdf"
	}
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="%s"`, FieldResume, escapeQuotes(name)))
	h.Set("Content-Type", "application/pdf")
	part, err := w.CreatePart(h)
	if err != nil {
		return nil, "", fmt.Errorf("analyze: encoding resume: %w", err)
	}
	if _, err := part.Write(req.File.Content); err != nil {
		return nil, "", fmt.Errorf("analyze: encoding resume: %w", err)
	}

	fields := [][2]string{{FieldAction, string(req.Action)}}
	if req.JobDescription != "" {
		fields = append(fields, [2]string{FieldJobDescription, req.JobDescription})
	} else {
		fields = append(fields, [2]string{FieldCompanyName, req.CompanyName})
	}
	for _, f := range fields {
		if err := w.WriteField(f[0], f[1]); err != nil {
			return nil, "", fmt.Errorf("analyze: encoding %s: %w", f[0], err)
		}
	}
	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("analyze: encoding form: %w", err)
	}
	return buf.Bytes(), w.FormDataContentType(), nil
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func escapeQuotes(s string) string {
	return quoteEscaper.Replace(s)
}
