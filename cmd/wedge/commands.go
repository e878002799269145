package main

import (
	"errors"
	"fmt"
	"text/tabwriter"

	"github.com/chewxy/math32"
	"github.com/spf13/cobra"

	"github.com/born-ml/wedge/backend/cpu"
	"github.com/born-ml/wedge/graph"
	"github.com/born-ml/wedge/internal/serialization"
	"github.com/born-ml/wedge/tfjs"
)

var errMismatch = errors.New("gpu output differs from the cpu reference")

// loadModel loads model.json when a path is given and the demo network
// otherwise.
func (c *cli) loadModel(args []string, output string) (*graph.Model, error) {
	if len(args) == 0 {
		return demoModel()
	}
	return tfjs.Load(args[0], tfjs.Options{Output: output, Logger: c.logger})
}

func newShadersCmd(c *cli) *cobra.Command {
	var (
		output string
		vertex bool
	)
	cmd := &cobra.Command{
		Use:   "shaders [model.json]",
		Short: "Print the generated shader of every program",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := c.loadModel(args, output)
			if err != nil {
				return err
			}
			eng, release, err := c.compile(m)
			if err != nil {
				return err
			}
			defer release()

			w := cmd.OutOrStdout()
			for i, p := range eng.Programs() {
				if i == 0 && vertex {
					fmt.Fprintf(w, "// vertex\n%s\n", p.Vertex)
				}
				fmt.Fprintf(w, "// %s (%s) %v\n%s\n", p.Node.Name, p.Node.Op, p.Node.Layout, p.Fragment())
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&output, "output", "", "model output node (default: the single sink)")
	cmd.Flags().BoolVar(&vertex, "vertex", false, "also print the shared vertex shader")
	return cmd
}

func newVerifyCmd(c *cli) *cobra.Command {
	var (
		output    string
		tolerance float32
	)
	cmd := &cobra.Command{
		Use:   "verify [model.json]",
		Short: "Run a model on the backend and compare with the CPU reference",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := c.loadModel(args, output)
			if err != nil {
				return err
			}
			eng, release, err := c.compile(m)
			if err != nil {
				return err
			}
			defer release()

			inputs := syntheticInputs(eng.Model())
			got, err := eng.Predict(inputs...)
			if err != nil {
				return err
			}
			want, err := cpu.New(c.logger).Predict(eng.Model(), inputs...)
			if err != nil {
				return err
			}
			if len(got) != len(want) {
				return fmt.Errorf("%w: %d values, want %d", errMismatch, len(got), len(want))
			}

			var worst float32
			at := 0
			for i := range want {
				if d := math32.Abs(got[i] - want[i]); d > worst {
					worst, at = d, i
				}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "output %v: %d values, max abs diff %g at %d\n",
				eng.OutputShape(), len(want), worst, at)
			if worst > tolerance {
				return fmt.Errorf("%w: %g > %g", errMismatch, worst, tolerance)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "ok")
			return nil
		},
	}
	cmd.Flags().StringVar(&output, "output", "", "model output node (default: the single sink)")
	cmd.Flags().Float32Var(&tolerance, "tolerance", 1e-3, "largest accepted absolute difference")
	return cmd
}

func newConvertCmd(c *cli) *cobra.Command {
	var output, saveWeights string
	cmd := &cobra.Command{
		Use:   "convert model.json",
		Short: "Load a TensorFlow.js model, compile it and list its nodes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := c.loadModel(args, output)
			if err != nil {
				return err
			}
			eng, release, err := c.compile(m)
			if err != nil {
				return err
			}
			defer release()

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "NODE\tOP\tSTATE\tSHAPE\tLAYOUT")
			for _, n := range eng.Nodes() {
				op := n.Op.String()
				if n.Op == graph.OpUnsupported {
					op = n.RawOp
				}
				switch {
				case n.Reason != nil:
					fmt.Fprintf(tw, "%s\t%s\t%s\t-\t%v\n", n.Name, op, n.State, n.Reason)
				case n.Layout.Valid():
					fmt.Fprintf(tw, "%s\t%s\t%s\t%v\t%dx%dx%d\n", n.Name, op, n.State, n.Shape,
						n.Layout.Width, n.Layout.Height, n.Layout.NumTextures)
				default:
					fmt.Fprintf(tw, "%s\t%s\t%s\t%v\t-\n", n.Name, op, n.State, n.Shape)
				}
			}
			if err := tw.Flush(); err != nil {
				return err
			}

			if saveWeights != "" {
				meta := map[string]string{"source": args[0], "generated_by": "wedge " + version}
				if err := serialization.SaveWeights(saveWeights, eng.Model().Weights, meta); err != nil {
					return err
				}
				c.logger.Info("saved weights", "path", saveWeights, "tensors", len(eng.Model().Weights))
			}

			st := eng.Stats()
			fmt.Fprintf(cmd.OutOrStdout(), "\n%d programs, %d textures, %d bytes (peak %d), output %v\n",
				len(eng.Programs()), st.Textures, st.AllocatedBytes, st.PeakBytes, eng.OutputShape())
			return nil
		},
	}
	cmd.Flags().StringVar(&output, "output", "", "model output node (default: the single sink)")
	cmd.Flags().StringVar(&saveWeights, "save-weights", "", "write the decoded weights to a .safetensors file")
	return cmd
}
