package awskms

import (
	"fmt"
	"sort"

	"github.com/hengadev/locker"
)

// regionPartitions lists the regions a key may be wrapped in, with their partition.
var regionPartitions = map[string]string{
	"us-east-1":      "aws",
	"us-east-2":      "aws",
	"us-west-1":      "aws",
	"us-west-2":      "aws",
	"af-south-1":     "aws",
	"ap-east-1":      "aws",
	"ap-east-2":      "aws",
	"ap-south-1":     "aws",
	"ap-south-2":     "aws",
	"ap-southeast-1": "aws",
	"ap-southeast-2": "aws",
	"ap-southeast-3": "aws",
	"ap-southeast-4": "aws",
	"ap-southeast-5": "aws",
	"ap-southeast-7": "aws",
	"ap-northeast-1": "aws",
	"ap-northeast-2": "aws",
	"ap-northeast-3": "aws",
	"ca-central-1":   "aws",
	"ca-west-1":      "aws",
	"eu-central-1":   "aws",
	"eu-central-2":   "aws",
	"eu-west-1":      "aws",
	"eu-west-2":      "aws",
	"eu-west-3":      "aws",
	"eu-south-1":     "aws",
	"eu-south-2":     "aws",
	"eu-north-1":     "aws",
	"il-central-1":   "aws",
	"me-south-1":     "aws",
	"me-central-1":   "aws",
	"mx-central-1":   "aws",
	"sa-east-1":      "aws",
	"cn-north-1":     "aws-cn",
	"cn-northwest-1": "aws-cn",
	"us-gov-east-1":  "aws-us-gov",
	"us-gov-west-1":  "aws-us-gov",
}

// ValidateRegion fails with locker.ErrInvalidArgument when region is not a known region.
func ValidateRegion(region string) error {
	if region == "" {
		return locker.NewRequiredError("region")
	}
	if _, ok := regionPartitions[region]; !ok {
		return fmt.Errorf("%w: invalid region: %s", locker.ErrInvalidArgument, region)
	}
	return nil
}

// Regions returns every region ValidateRegion accepts, sorted.
func Regions() []string {
	regions := make([]string, 0, len(regionPartitions))
	for r := range regionPartitions {
		regions = append(regions, r)
	}
	sort.Strings(regions)
	return regions
}

func partitionOf(region string) string {
	if p, ok := regionPartitions[region]; ok {
		return p
	}
	return "aws"
}
