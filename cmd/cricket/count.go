package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/tiktoken-go/tokenizer"
)

func newCountCommand() *cobra.Command {
	var model string
	var codecName string

	cmd := &cobra.Command{
		Use:   "count [file]",
		Short: "Count tokens in a file or on stdin",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			input, err := readInput(args)
			if err != nil {
				return err
			}

			name := codecName
			if name == "" {
				name = defaultEncoding(model)
			}
			codec, err := getCodec(name)
			if err != nil {
				return err
			}
			ids, _, err := codec.Encode(input)
			if err != nil {
				return errors.Wrap(err, "encode input")
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Model: %s\n", model)
			fmt.Fprintf(out, "Codec: %s\n", name)
			fmt.Fprintf(out, "Total tokens: %d\n", len(ids))
			return nil
		},
	}

	cmd.Flags().StringVar(&model, "model", "gpt-4", "model the text is destined for")
	cmd.Flags().StringVar(&codecName, "codec", "", "tokenizer codec, overrides the model mapping")
	return cmd
}

func readInput(args []string) (string, error) {
	if len(args) == 0 || args[0] == "-" {
		b, err := io.ReadAll(os.Stdin)
		if err != nil {
			return "", errors.Wrap(err, "read stdin")
		}
		return string(b), nil
	}
	b, err := os.ReadFile(args[0])
	if err != nil {
		return "", errors.Wrapf(err, "read %s", args[0])
	}
	return string(b), nil
}

func defaultEncoding(model string) string {
	switch {
	case strings.HasPrefix(model, "gpt-4"),
		strings.HasPrefix(model, "gpt-3.5-turbo"),
		strings.HasPrefix(model, "text-embedding-ada-002"):
		return "cl100k_base"
	case strings.HasPrefix(model, "text-davinci-002"), strings.HasPrefix(model, "text-davinci-003"):
		return "p50k_base"
	default:
		return "r50k_base"
	}
}

func getCodec(name string) (tokenizer.Codec, error) {
	codec, err := tokenizer.Get(tokenizer.Encoding(name))
	if err != nil {
		return nil, errors.Wrapf(err, "get codec %q", name)
	}
	return codec, nil
}
