package cmd

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/ssargent/litetx/pkg/ltx"
)

func newVerifyCmd(a *app) *cobra.Command {
	verifyCmd := &cobra.Command{
		Use:   "verify [ltx]...",
		Short: "Verify the checksums of LTX files",
		Long: `Decode LTX files end to end and check their file checksums.

With --store every file in the store directory is verified.

Examples:
  litetx verify snapshot.ltx
  litetx verify --store`,
		RunE: func(cmd *cobra.Command, args []string) error {
			all, _ := cmd.Flags().GetBool("store")

			paths := args
			if all {
				st, err := a.openStore(nil)
				if err != nil {
					return err
				}
				files, err := st.Files()
				if err != nil {
					return err
				}
				for _, fi := range files {
					paths = append(paths, filepath.Join(st.Dir(), fi.Name))
				}
			}
			if len(paths) == 0 {
				return fmt.Errorf("no files to verify")
			}

			var failed int
			for _, path := range paths {
				hdr, trailer, err := verifyFile(path)
				if err != nil {
					failed++
					a.log.WithError(err).WithField("file", path).Warn("ltx file failed verification")
					fmt.Fprintf(cmd.OutOrStdout(), "%s\tFAILED\t%v\n", path, err)
					continue
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s\tOK\t%s-%s\tpost-apply %s\n",
					path, hdr.MinTXID, hdr.MaxTXID, trailer.PostApplyChecksum)
			}

			if failed > 0 {
				return fmt.Errorf("%d of %d files failed verification", failed, len(paths))
			}
			return nil
		},
	}

	verifyCmd.Flags().Bool("store", false, "Verify every file in the store directory")
	return verifyCmd
}

func verifyFile(path string) (ltx.Header, ltx.Trailer, error) {
	f, err := os.Open(path)
	if err != nil {
		return ltx.Header{}, ltx.Trailer{}, errors.Wrap(err, "open ltx file")
	}
	defer f.Close()
	return ltx.Verify(bufio.NewReaderSize(f, 64*1024))
}
