// msddump decodes an encoded MSD given as hex string and prints its content as YAML.
//
//	msddump 011C8104...
//	echo 011C8104... | msddump
package main

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/ftl/ecall/at"
	"github.com/ftl/ecall/msd"
)

type dump struct {
	Bytes      int                 `yaml:"bytes"`
	Message    msd.Message         `yaml:"message"`
	EraGlonass *msd.EraGlonassData `yaml:"eraGlonass,omitempty"`
}

func main() {
	var input string
	if len(os.Args) > 1 {
		input = strings.Join(os.Args[1:], "")
	} else {
		data, err := io.ReadAll(bufio.NewReader(os.Stdin))
		if err != nil {
			fmt.Fprintf(os.Stderr, "cannot read stdin: %v\n", err)
			os.Exit(1)
		}
		input = string(data)
	}

	err := writeDump(os.Stdout, input)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func writeDump(w io.Writer, hexString string) error {
	data, err := at.HexToBinary(hexString)
	if err != nil {
		return fmt.Errorf("invalid hex string: %w", err)
	}
	msg, err := msd.Decode(data)
	if err != nil {
		return err
	}

	result := dump{
		Bytes:   len(data),
		Message: msg,
	}
	if msg.OptionalDataPresent && bytes.Equal(msg.OptionalData.OID, msd.EraGlonassOID) {
		eraGlonass, err := msd.DecodeEraGlonassOptionalData(msg.OptionalData.Data)
		if err != nil {
			return err
		}
		result.EraGlonass = &eraGlonass
	}

	encoder := yaml.NewEncoder(w)
	encoder.SetIndent(2)
	defer encoder.Close()
	return encoder.Encode(result)
}
