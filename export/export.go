// Package export serializes extracted URL lists to common report formats.
package export

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"
	"gopkg.in/yaml.v3"
)

// Format identifies an output serialization.
type Format string

const (
	FormatTXT  Format = "txt"
	FormatJSON Format = "json"
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
	FormatYAML Format = "yaml"
)

// Formats lists the supported output formats.
func Formats() []Format {
	return []Format{FormatTXT, FormatJSON, FormatCSV, FormatXLSX, FormatYAML}
}

// FormatForPath infers the output format from a file path's extension.
func FormatForPath(path string) (Format, error) {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(path), "."))
	switch ext {
	case "txt":
		return FormatTXT, nil
	case "json":
		return FormatJSON, nil
	case "csv":
		return FormatCSV, nil
	case "xlsx":
		return FormatXLSX, nil
	case "yaml", "yml":
		return FormatYAML, nil
	default:
		return "", fmt.Errorf("unsupported output extension %q (use txt, json, csv, xlsx, or yaml)", ext)
	}
}

// document is the shape shared by the structured formats.
type document struct {
	URLs  []string `json:"urls" yaml:"urls"`
	Count int      `json:"count" yaml:"count"`
}

// Write serializes urls to a file, inferring the format from the path's
// extension.
func Write(path string, urls []string) error {
	format, err := FormatForPath(path)
	if err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := WriteTo(f, format, urls); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// WriteTo serializes urls to w in the given format.
func WriteTo(w io.Writer, format Format, urls []string) error {
	if urls == nil {
		urls = []string{}
	}
	switch format {
	case FormatTXT:
		return writeTXT(w, urls)
	case FormatJSON:
		return writeJSON(w, urls)
	case FormatCSV:
		return writeCSV(w, urls)
	case FormatXLSX:
		return writeXLSX(w, urls)
	case FormatYAML:
		return writeYAML(w, urls)
	default:
		return fmt.Errorf("unsupported output format %q", format)
	}
}

func writeTXT(w io.Writer, urls []string) error {
	for _, u := range urls {
		if _, err := fmt.Fprintln(w, u); err != nil {
			return err
		}
	}
	return nil
}

func writeJSON(w io.Writer, urls []string) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(document{URLs: urls, Count: len(urls)})
}

func writeCSV(w io.Writer, urls []string) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"url"}); err != nil {
		return err
	}
	for _, u := range urls {
		if err := cw.Write([]string{u}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func writeXLSX(w io.Writer, urls []string) error {
	file := excelize.NewFile()
	defer file.Close()

	const sheet = "URLs"
	if err := file.SetSheetName("Sheet1", sheet); err != nil {
		return err
	}
	if err := file.SetCellValue(sheet, "A1", "url"); err != nil {
		return err
	}
	for i, u := range urls {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := file.SetCellValue(sheet, cell, u); err != nil {
			return err
		}
	}
	_, err := file.WriteTo(w)
	return err
}

func writeYAML(w io.Writer, urls []string) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(document{URLs: urls, Count: len(urls)}); err != nil {
		enc.Close()
		return err
	}
	return enc.Close()
}
