package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/pet-listings-scraper/internal/siteurl"
)

func newBuildURLCmd() *cobra.Command {
	var params siteurl.Params
	cmd := &cobra.Command{
		Use:         "build-url",
		Short:       "Prints the category URL for a category, county and city",
		Annotations: map[string]string{standaloneAnnotation: "true"},
		RunE: func(cmd *cobra.Command, _ []string) error {
			u, err := siteurl.Build(params)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), u)
			return nil
		},
	}
	cmd.Flags().StringVar(&params.Category, "category", "", "category slug, e.g. caini")
	cmd.Flags().StringVar(&params.Subcategory, "subcategory", "", "subcategory, e.g. ciobanesc german")
	cmd.Flags().StringVar(&params.County, "county", "", "county slug")
	cmd.Flags().StringVar(&params.City, "city", "", "city slug; requires --county")
	return cmd
}
