package main

import (
	"github.com/spf13/cobra"

	"gctrail/internal/console"
	"gctrail/internal/heap"
	"gctrail/internal/reach"
)

func newInspectCmd() *cobra.Command {
	var typeName string
	cmd := &cobra.Command{
		Use:   "inspect [flags] HEAP",
		Short: "List the roots and objects of a heap",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := loadSettings(cmd)
			if err != nil {
				return err
			}
			h, err := heap.Load(args[0])
			if err != nil {
				return err
			}
			p := console.New(cmd.OutOrStdout(), s.color)

			p.Headerf("roots:")
			for i, r := range h.Roots() {
				p.Linef("[%d] %s -> %s ::%s", i, r.Name, r.ID, h.Describe(r.ID))
			}

			var ids []reach.ID
			if typeName != "" {
				ids = h.ObjectsOfType(typeName)
			} else {
				ids = h.Objects()
			}
			p.Headerf("objects: %s", console.Count(len(ids)))
			for _, id := range ids {
				o, _ := h.Lookup(id)
				p.Linef("%s ::%s (%s)", id, o.Type.Name, o.Type.Kind)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&typeName, "type", "", "only list objects of this type")
	return cmd
}
