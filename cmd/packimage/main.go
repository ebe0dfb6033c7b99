package main

import (
	"fmt"
	"io"
	"os"

	"github.com/dargueta/pgtdump/utilities/compression"
	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
)

type converter func(input io.Reader, output io.Writer) (int64, error)

func main() {
	app := cli.App{
		Name:  "packimage",
		Usage: "Pack or unpack memory images using RLE8 and gzip",
		Commands: []*cli.Command{
			{
				Name:      "pack",
				Usage:     "Compress a raw image",
				ArgsUsage: "INPUT_FILE OUTPUT_FILE",
				Action:    convertAction(compression.CompressImage),
			},
			{
				Name:      "unpack",
				Usage:     "Expand a packed image back to raw bytes",
				ArgsUsage: "INPUT_FILE OUTPUT_FILE",
				Action:    convertAction(compression.DecompressImage),
			},
		},
	}

	err := app.Run(os.Args)
	if err != nil {
		log.Fatalf("fatal error: %s", err.Error())
	}
}

func convertAction(convert converter) cli.ActionFunc {
	return func(context *cli.Context) error {
		if context.Args().Len() != 2 {
			return fmt.Errorf(
				"expected 2 arguments, got %d; usage: %s %s",
				context.Args().Len(),
				context.Command.HelpName,
				context.Command.ArgsUsage,
			)
		}
		return convertFile(context.Args().Get(0), context.Args().Get(1), convert)
	}
}

func convertFile(sourceFilePath, outputFilePath string, convert converter) error {
	sourceFile, err := os.Open(sourceFilePath)
	if err != nil {
		return fmt.Errorf("failed to open file for reading: `%v`: %w", sourceFilePath, err)
	}
	defer sourceFile.Close()

	outFile, err := os.Create(outputFilePath)
	if err != nil {
		return fmt.Errorf("failed to open file for writing: `%v`: %w", outputFilePath, err)
	}

	nWritten, err := convert(sourceFile, outFile)
	if closeErr := outFile.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return fmt.Errorf("error converting `%v`: %w", sourceFilePath, err)
	}

	log.WithFields(log.Fields{
		"input":  sourceFilePath,
		"output": outputFilePath,
		"bytes":  nWritten,
	}).Info("converted image")
	return nil
}
