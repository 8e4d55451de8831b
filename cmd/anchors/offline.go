package main

import (
	"errors"
	"fmt"
	"os"

	"chronicle/anchors/internal/anchor"
	"chronicle/anchors/internal/document"
	"chronicle/anchors/internal/tracker"

	"github.com/spf13/cobra"
)

func newRecoverCmd() *cobra.Command {
	var anchorsPath, textPath, docPath string
	cmd := &cobra.Command{
		Use:   "recover",
		Short: "Recover anchors against a text or document snapshot without touching storage",
		RunE: func(cmd *cobra.Command, args []string) error {
			var anchors []anchor.Anchor
			if err := readJSONFile(anchorsPath, &anchors); err != nil {
				return err
			}
			text, err := snapshotText(textPath, docPath)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), anchor.RecoverAll(anchors, text))
		},
	}
	cmd.Flags().StringVar(&anchorsPath, "anchors", "", "JSON file with the stored anchors")
	cmd.Flags().StringVar(&textPath, "text", "", "plain text snapshot")
	cmd.Flags().StringVar(&docPath, "doc", "", "ProseMirror JSON snapshot")
	_ = cmd.MarkFlagRequired("anchors")
	cmd.MarkFlagsMutuallyExclusive("text", "doc")
	return cmd
}

func newScanCmd() *cobra.Command {
	var docPath string
	cmd := &cobra.Command{
		Use:   "scan",
		Short: "List the annotation ranges a document's comment marks describe",
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := loadDocument(docPath)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), tracker.Scan(doc))
		},
	}
	cmd.Flags().StringVar(&docPath, "doc", "", "ProseMirror JSON document")
	_ = cmd.MarkFlagRequired("doc")
	return cmd
}

func snapshotText(textPath, docPath string) (string, error) {
	switch {
	case textPath != "":
		raw, err := os.ReadFile(textPath)
		if err != nil {
			return "", fmt.Errorf("read %s: %w", textPath, err)
		}
		return string(raw), nil
	case docPath != "":
		doc, err := loadDocument(docPath)
		if err != nil {
			return "", err
		}
		return doc.PlainText(), nil
	default:
		return "", errors.New("one of --text or --doc is required")
	}
}

func loadDocument(path string) (*document.Doc, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	doc, err := document.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return doc, nil
}
