package main

import (
	"fmt"
	"log"
	"os"

	"github.com/mtwaring/fatdefrag"
	"github.com/mtwaring/fatdefrag/disks"
	"github.com/urfave/cli/v2"
)

func main() {
	app := cli.App{
		Usage: "Inspect and defragment FAT12/FAT16/FAT32 disk images",
		Commands: []*cli.Command{
			{
				Name:      "info",
				Usage:     "Print the root directory handle of a FAT volume image and, if its size matches a known floppy format, the media name (volume geometry fields are not printed)",
				Action:    infoCommand,
				ArgsUsage: "IMAGE_FILE",
			},
			{
				Name:      "stat",
				Usage:     "Print information about a file or directory in the image",
				Action:    statCommand,
				ArgsUsage: "IMAGE_FILE PATH",
			},
			{
				Name:      "frag",
				Usage:     "Report how fragmented a file is",
				Action:    fragCommand,
				ArgsUsage: "IMAGE_FILE PATH",
			},
			{
				Name:      "defrag",
				Usage:     "Defragment a file, or recursively a directory",
				Action:    defragCommand,
				ArgsUsage: "IMAGE_FILE PATH",
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatalf("fatal error: %s", err.Error())
	}
}

func openImageArg(context *cli.Context, argIndex int) (*fatdefrag.Partition, *os.File, error) {
	imagePath := context.Args().Get(argIndex)
	if imagePath == "" {
		return nil, nil, fmt.Errorf("missing IMAGE_FILE argument")
	}

	fmt.Fprintln(os.Stderr, "reminder: unmount the device before running fatdefrag; it does not unmount anything itself")

	f, err := os.OpenFile(imagePath, os.O_RDWR, 0)
	if err != nil {
		return nil, nil, err
	}

	partition, err := fatdefrag.Open(f)
	if err != nil {
		f.Close()
		return nil, nil, err
	}
	return partition, f, nil
}

func infoCommand(context *cli.Context) error {
	partition, f, err := openImageArg(context, 0)
	if err != nil {
		return err
	}
	defer f.Close()

	root, err := partition.GetFile("/")
	if err != nil {
		return err
	}
	fatdefrag.PrintFileInfo(os.Stdout, root)

	stat, err := f.Stat()
	if err == nil {
		if known, ok := disks.Lookup(stat.Size()); ok {
			fmt.Printf("media: %s (%s)\n", known.Name, known.Slug)
		} else {
			fmt.Println("media: unrecognized geometry")
		}
	}
	return nil
}

func statCommand(context *cli.Context) error {
	partition, f, err := openImageArg(context, 0)
	if err != nil {
		return err
	}
	defer f.Close()

	path := context.Args().Get(1)
	if path == "" {
		return fmt.Errorf("missing PATH argument")
	}

	file, err := partition.GetFile(path)
	if err != nil {
		return err
	}
	if file.Kind == fatdefrag.KindNone {
		return fmt.Errorf("no such file or directory: %s", path)
	}
	fatdefrag.PrintFileInfo(os.Stdout, file)
	return nil
}

func fragCommand(context *cli.Context) error {
	partition, f, err := openImageArg(context, 0)
	if err != nil {
		return err
	}
	defer f.Close()

	path := context.Args().Get(1)
	file, err := partition.GetFile(path)
	if err != nil {
		return err
	}
	if file.Kind == fatdefrag.KindNone {
		return fmt.Errorf("no such file or directory: %s", path)
	}

	fragments, err := partition.IsFileFragmented(file)
	if err != nil {
		return err
	}
	fmt.Printf("%s: %d fragments\n", path, fragments)
	return nil
}

func defragCommand(context *cli.Context) error {
	partition, f, err := openImageArg(context, 0)
	if err != nil {
		return err
	}
	defer f.Close()

	path := context.Args().Get(1)
	file, err := partition.GetFile(path)
	if err != nil {
		return err
	}
	if file.Kind == fatdefrag.KindNone {
		return fmt.Errorf("no such file or directory: %s", path)
	}

	relocated, err := partition.Defragment(file)
	fmt.Printf("%s: relocated %d file(s)\n", path, relocated)
	if err != nil {
		return fmt.Errorf("completed with errors: %w", err)
	}
	return nil
}
