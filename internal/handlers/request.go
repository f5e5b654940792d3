package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"mime"
	"mime/multipart"
	"net/http"
	"net/url"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/learnhub/apiserver/types"
)

const maxMultipartMemory = 32 << 20

var (
	errInvalidRequest = errors.New("invalid request")
	errFileTooLarge   = errors.New("uploaded file too large")
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// validationMessage renders the first failed rule for clients.
func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return err.Error()
	}
	fe := verrs[0]
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", fe.Field())
	case "email":
		return fmt.Sprintf("%s must be a valid email", fe.Field())
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", fe.Field(), fe.Param())
	case "gte":
		return fmt.Sprintf("%s must be at least %s", fe.Field(), fe.Param())
	default:
		return fmt.Sprintf("%s is invalid", fe.Field())
	}
}

// formBinder is implemented by request types that accept form encodings.
type formBinder interface {
	bindForm(values url.Values) error
}

// bindRequest decodes a JSON, urlencoded or multipart body into dst. For
// multipart bodies the file in fileField, if any, is returned.
func bindRequest(r *http.Request, dst formBinder, fileField string, maxFileBytes int64) (*types.FileUpload, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	switch mediaType {
	case "multipart/form-data":
		if err := r.ParseMultipartForm(maxMultipartMemory); err != nil {
			return nil, errInvalidRequest
		}
		if err := dst.bindForm(r.MultipartForm.Value); err != nil {
			return nil, err
		}
		if fileField == "" {
			return nil, nil
		}
		return formFile(r.MultipartForm, fileField, maxFileBytes)
	case "application/x-www-form-urlencoded":
		if err := r.ParseForm(); err != nil {
			return nil, errInvalidRequest
		}
		return nil, dst.bindForm(r.PostForm)
	default:
		if err := json.NewDecoder(r.Body).Decode(dst); err != nil && !errors.Is(err, io.EOF) {
			return nil, errInvalidRequest
		}
		return nil, nil
	}
}

func formFile(form *multipart.Form, field string, limit int64) (*types.FileUpload, error) {
	files := form.File[field]
	if len(files) == 0 {
		return nil, nil
	}
	if len(files) > 1 {
		return nil, fmt.Errorf("only one %s file is allowed", field)
	}

	header := files[0]
	file, err := header.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", field, err)
	}
	defer file.Close()

	data, err := readFileLimited(file, limit)
	if err != nil {
		return nil, err
	}
	return &types.FileUpload{
		Filename:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Data:        data,
	}, nil
}

func readFileLimited(reader io.Reader, limit int64) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(reader, limit+1))
	if err != nil {
		return nil, errors.New("failed to read upload")
	}
	if int64(len(data)) > limit {
		return nil, errFileTooLarge
	}
	return data, nil
}

// parsePrice parses an optional decimal. Empty input yields nil.
func parsePrice(raw string) (*float64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	value, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(value) || math.IsInf(value, 0) {
		return nil, errors.New("not a number")
	}
	return &value, nil
}

// parseTags accepts repeated values and comma separated lists.
func parseTags(values []string) []string {
	tags := make([]string, 0, len(values))
	for _, value := range values {
		for _, part := range strings.Split(value, ",") {
			if tag := strings.TrimSpace(part); tag != "" {
				tags = append(tags, tag)
			}
		}
	}
	return tags
}

// flexPrice decodes a JSON number or a numeric string.
type flexPrice float64

func (p *flexPrice) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*p = 0
		return nil
	}
	var number float64
	if err := json.Unmarshal(data, &number); err == nil {
		*p = flexPrice(number)
		return nil
	}
	var text string
	if err := json.Unmarshal(data, &text); err != nil {
		return errors.New("price must be a number")
	}
	value, err := parsePrice(text)
	if err != nil {
		return errors.New("price must be a number")
	}
	if value != nil {
		*p = flexPrice(*value)
	}
	return nil
}

// flexTags decodes a JSON array of strings or a comma separated string.
type flexTags []string

func (t *flexTags) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*t = nil
		return nil
	}
	var list []string
	if err := json.Unmarshal(data, &list); err == nil {
		*t = parseTags(list)
		return nil
	}
	var text string
	if err := json.Unmarshal(data, &text); err != nil {
		return errors.New("tags must be a list of strings")
	}
	*t = parseTags([]string{text})
	return nil
}
