package main

import (
	"context"
	"errors"

	"github.com/AlecAivazis/survey/v2"
	"github.com/kotylevskiy/go-sitemap-extractor/export"
)

// terminalConfirmer holds the browser tier open until the user confirms in
// the terminal that the sitemap finished loading.
type terminalConfirmer struct{}

func (terminalConfirmer) Confirm(ctx context.Context, prompt string) error {
	done := make(chan error, 1)
	go func() {
		confirmed := true
		err := survey.AskOne(&survey.Confirm{Message: prompt, Default: true}, &confirmed)
		if err == nil && !confirmed {
			err = errors.New("declined at the confirmation prompt")
		}
		done <- err
	}()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-done:
		return err
	}
}

type runAnswers struct {
	source  string
	output  string
	browser bool
}

// promptForRun collects the source, optional output file, and the browser
// fallback opt-in.
func promptForRun(defaultSource string) (runAnswers, error) {
	answers := runAnswers{}

	if err := survey.AskOne(&survey.Input{
		Message: "Sitemap path or URL:",
		Default: defaultSource,
	}, &answers.source, survey.WithValidator(survey.Required)); err != nil {
		return runAnswers{}, err
	}

	save := true
	if err := survey.AskOne(&survey.Confirm{
		Message: "Save the result to a file?",
		Default: true,
	}, &save); err != nil {
		return runAnswers{}, err
	}
	if save {
		formats := make([]string, 0, len(export.Formats()))
		for _, f := range export.Formats() {
			formats = append(formats, string(f))
		}
		format := string(export.FormatTXT)
		if err := survey.AskOne(&survey.Select{
			Message: "Output format:",
			Options: formats,
			Default: format,
		}, &format); err != nil {
			return runAnswers{}, err
		}
		if err := survey.AskOne(&survey.Input{
			Message: "Output file:",
			Default: "urls." + format,
		}, &answers.output, survey.WithValidator(survey.Required)); err != nil {
			return runAnswers{}, err
		}
	}

	if err := survey.AskOne(&survey.Confirm{
		Message: "Open a browser window if the sitemap is blocked?",
		Default: false,
	}, &answers.browser); err != nil {
		return runAnswers{}, err
	}
	return answers, nil
}
