package main

import (
	"fmt"
	"os"

	"opvm/internal/asm"
	"opvm/vm"

	"github.com/spf13/cobra"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "opvm",
		Short: "Assemble and run register-VM bytecode programs",
	}

	var reflection bool
	var debugMode bool

	runCmd := &cobra.Command{
		Use:   "run <file.asm>",
		Short: "Assemble and execute a program",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			program, err := assembleFile(args[0])
			if err != nil {
				return err
			}

			machine := vm.New(reflection)
			if debugMode {
				return machine.RunDebugMode(*program)
			}
			if err := machine.Run(*program); err != nil {
				return err
			}
			return nil
		},
	}
	runCmd.Flags().BoolVar(&reflection, "reflection", false, "enable stack_len/call_stack_len/pc reflection registers")
	runCmd.Flags().BoolVar(&debugMode, "debug", false, "step through execution under an interactive breakpoint REPL")

	disasmCmd := &cobra.Command{
		Use:   "disasm <file.asm>",
		Short: "Assemble a program and print its disassembly",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			program, err := assembleFile(args[0])
			if err != nil {
				return err
			}
			for i, ins := range program.Instructions {
				fmt.Printf("%d\t%s\n", i, ins.String())
			}
			return nil
		},
	}

	rootCmd.AddCommand(runCmd, disasmCmd)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func assembleFile(path string) (*vm.Program, error) {
	source, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return asm.Build(string(source))
}
