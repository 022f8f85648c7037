package backend

import (
	"context"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ecs"
	"github.com/lithammer/shortuuid"
)

type ECSService struct {
	Name         string
	ARN          string
	Status       string
	DesiredCount int
	RunningCount int
	PendingCount int
	LaunchType   string
}

type ScaleResult struct {
	Service       string
	PreviousCount int
	DesiredCount  int
}

// NameFromARN returns the last path element of an ARN.
func NameFromARN(arn string) string {
	if i := strings.LastIndex(arn, "/"); i >= 0 {
		return arn[i+1:]
	}
	if i := strings.LastIndex(arn, ":"); i >= 0 {
		return arn[i+1:]
	}
	return arn
}

// Clusters lists the ARNs of all ECS clusters in the region.
func (b *Backend) Clusters() ([]string, error) {
	log := b.log.WithPrefix("Clusters: job=" + shortuuid.New() + " ")
	log.Detail("Start")
	defer log.Detail("End")
	arns := []string{}
	paginator := ecs.NewListClustersPaginator(b.ecs, &ecs.ListClustersInput{})
	for paginator.HasMorePages() {
		out, err := paginator.NextPage(context.TODO())
		if err != nil {
			return nil, wrapErr("ECS", "ListClusters", err)
		}
		arns = append(arns, out.ClusterArns...)
	}
	return arns, nil
}

// Services lists the service ARNs of a cluster.
func (b *Backend) Services(cluster string) ([]string, error) {
	log := b.log.WithPrefix("Services: job=" + shortuuid.New() + " cluster=" + cluster + " ")
	log.Detail("Start")
	defer log.Detail("End")
	arns := []string{}
	paginator := ecs.NewListServicesPaginator(b.ecs, &ecs.ListServicesInput{
		Cluster: aws.String(cluster),
	})
	for paginator.HasMorePages() {
		out, err := paginator.NextPage(context.TODO())
		if err != nil {
			if IsAPIError(err, "ClusterNotFoundException") {
				return nil, &NotFoundError{Kind: "cluster", ID: cluster}
			}
			return nil, wrapErr("ECS", "ListServices", err)
		}
		arns = append(arns, out.ServiceArns...)
	}
	return arns, nil
}

// Service describes one service with its task counts.
func (b *Backend) Service(cluster string, service string) (*ECSService, error) {
	out, err := b.ecs.DescribeServices(context.TODO(), &ecs.DescribeServicesInput{
		Cluster:  aws.String(cluster),
		Services: []string{service},
	})
	if err != nil {
		if IsAPIError(err, "ClusterNotFoundException") {
			return nil, &NotFoundError{Kind: "cluster", ID: cluster}
		}
		return nil, wrapErr("ECS", "DescribeServices", err)
	}
	if len(out.Services) == 0 {
		return nil, &NotFoundError{Kind: "service", ID: service}
	}
	s := out.Services[0]
	return &ECSService{
		Name:         aws.ToString(s.ServiceName),
		ARN:          aws.ToString(s.ServiceArn),
		Status:       aws.ToString(s.Status),
		DesiredCount: int(s.DesiredCount),
		RunningCount: int(s.RunningCount),
		PendingCount: int(s.PendingCount),
		LaunchType:   string(s.LaunchType),
	}, nil
}

// ScaleService sets the desired task count and reports the count it replaced.
func (b *Backend) ScaleService(cluster string, service string, desired int) (*ScaleResult, error) {
	log := b.log.WithPrefix("ScaleService: job=" + shortuuid.New() + " cluster=" + cluster + " service=" + service + " ")
	log.Detail("Start")
	defer log.Detail("End")
	current, err := b.Service(cluster, service)
	if err != nil {
		return nil, err
	}
	out, err := b.ecs.UpdateService(context.TODO(), &ecs.UpdateServiceInput{
		Cluster:      aws.String(cluster),
		Service:      aws.String(service),
		DesiredCount: aws.Int32(int32(desired)),
	})
	if err != nil {
		return nil, wrapErr("ECS", "UpdateService", err)
	}
	res := &ScaleResult{
		Service:       NameFromARN(service),
		PreviousCount: current.DesiredCount,
		DesiredCount:  desired,
	}
	if out.Service != nil {
		res.DesiredCount = int(out.Service.DesiredCount)
	}
	return res, nil
}
