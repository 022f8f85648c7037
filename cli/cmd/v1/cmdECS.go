package cmd

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/ivyleavedtoadflax/remote.py/pkg/backend"
	"github.com/ivyleavedtoadflax/remote.py/pkg/utils/jobqueue"
	"github.com/ivyleavedtoadflax/remote.py/pkg/utils/printer"
	"github.com/ivyleavedtoadflax/remote.py/pkg/validate"
	"github.com/jedib0t/go-pretty/v6/table"
)

// serviceLookups bounds concurrent DescribeServices calls.
const serviceLookups = 5

type ECSClustersCmd struct {
	listOutput
	Help HelpCmd `command:"help" subcommands-optional:"true" description:"Print help"`
}

func (c *ECSClustersCmd) Execute(args []string) error {
	cmd := []string{"ecs", "clusters"}
	system, err := Initialize(&Init{InitBackend: true}, cmd, c)
	if err != nil {
		return Error(err, system, cmd, c, args)
	}
	return Error(c.list(system), system, cmd, c, args)
}

type ecsCluster struct {
	Name string `json:"name" yaml:"name"`
	ARN  string `json:"arn" yaml:"arn"`
}

func (c *ECSClustersCmd) list(system *System) error {
	arns, err := system.Backend.Clusters()
	if err != nil {
		return err
	}
	if len(arns) == 0 && !printer.IsStructured(c.Output) {
		system.Logger.Warn("No clusters found")
		return nil
	}
	clusters := []*ecsCluster{}
	for _, arn := range arns {
		clusters = append(clusters, &ecsCluster{Name: backend.NameFromARN(arn), ARN: arn})
	}
	return c.render(&listing{
		Title:  "ECS Clusters",
		Header: table.Row{"Cluster", "ARN"},
		Value:  clusters,
		Rows: func(t *printer.TableWriter) []table.Row {
			rows := []table.Row{}
			for _, cl := range clusters {
				rows = append(rows, table.Row{cl.Name, cl.ARN})
			}
			return rows
		},
	})
}

// pickCluster asks for a cluster when none was given.
func pickCluster(system *System, cluster string) (string, error) {
	if cluster != "" {
		return cluster, nil
	}
	arns, err := system.Backend.Clusters()
	if err != nil {
		return "", err
	}
	if len(arns) == 0 {
		return "", errors.New("no ECS clusters found")
	}
	rows := [][]string{}
	for _, arn := range arns {
		rows = append(rows, []string{backend.NameFromARN(arn), arn})
	}
	idx, err := selectOne("Select cluster", rows)
	if err != nil {
		return "", err
	}
	return backend.NameFromARN(arns[idx]), nil
}

type ECSServicesCmd struct {
	listOutput
	Args struct {
		Cluster string `positional-arg-name:"CLUSTER" description:"Cluster name, asked for when not given"`
	} `positional-args:"true"`
	Help HelpCmd `command:"help" subcommands-optional:"true" description:"Print help"`
}

func (c *ECSServicesCmd) Execute(args []string) error {
	cmd := []string{"ecs", "services"}
	system, err := Initialize(&Init{InitBackend: true}, cmd, c)
	if err != nil {
		return Error(err, system, cmd, c, args)
	}
	return Error(c.list(system), system, cmd, c, args)
}

func (c *ECSServicesCmd) list(system *System) error {
	cluster, err := pickCluster(system, c.Args.Cluster)
	if err != nil {
		return err
	}
	arns, err := system.Backend.Services(cluster)
	if err != nil {
		return err
	}
	if len(arns) == 0 && !printer.IsStructured(c.Output) {
		system.Logger.Warn("No services found in %s", cluster)
		return nil
	}
	found := jobqueue.Map(arns, serviceLookups, func(arn string) *backend.ECSService {
		svc, err := system.Backend.Service(cluster, arn)
		if err != nil {
			system.Logger.Warn("Could not describe %s: %s", backend.NameFromARN(arn), err)
			return &backend.ECSService{Name: backend.NameFromARN(arn), ARN: arn}
		}
		return svc
	})
	services := []*backend.ECSService{}
	for _, arn := range arns {
		services = append(services, found[arn])
	}
	return c.render(&listing{
		Title:  "ECS Services in " + cluster,
		Header: table.Row{"Service", "Status", "Desired", "Running", "Pending", "Launch Type"},
		Value:  services,
		Rows: func(t *printer.TableWriter) []table.Row {
			rows := []table.Row{}
			for _, s := range services {
				rows = append(rows, table.Row{s.Name, t.State(s.Status), s.DesiredCount, s.RunningCount, s.PendingCount, orDash(s.LaunchType)})
			}
			return rows
		},
	})
}

type ECSScaleCmd struct {
	Count *int `short:"n" long:"count" description:"Desired task count, asked for when not given"`
	Yes   bool `short:"y" long:"yes" description:"Do not ask for confirmation"`
	Args  struct {
		Cluster  string   `positional-arg-name:"CLUSTER" description:"Cluster name, asked for when not given"`
		Services []string `positional-arg-name:"SERVICE" description:"Service names, asked for when not given"`
	} `positional-args:"true"`
	Help HelpCmd `command:"help" subcommands-optional:"true" description:"Print help"`
}

func (c *ECSScaleCmd) Execute(args []string) error {
	cmd := []string{"ecs", "scale"}
	system, err := Initialize(&Init{InitBackend: true}, cmd, c)
	if err != nil {
		return Error(err, system, cmd, c, args)
	}
	system.Logger.Info("Running %s", strings.Join(cmd, "."))
	err = c.scale(system)
	if err != nil {
		return Error(err, system, cmd, c, args)
	}
	system.Logger.Info("Done")
	return Error(nil, system, cmd, c, args)
}

func (c *ECSScaleCmd) services(system *System, cluster string) ([]string, error) {
	if len(c.Args.Services) > 0 {
		return c.Args.Services, nil
	}
	arns, err := system.Backend.Services(cluster)
	if err != nil {
		return nil, err
	}
	if len(arns) == 0 {
		return nil, fmt.Errorf("no services found in %s", cluster)
	}
	rows := [][]string{}
	for _, arn := range arns {
		rows = append(rows, []string{backend.NameFromARN(arn), arn})
	}
	idx, err := selectOne("Select service", rows)
	if err != nil {
		return nil, err
	}
	return []string{backend.NameFromARN(arns[idx])}, nil
}

func (c *ECSScaleCmd) count() (int, error) {
	if c.Count != nil {
		if *c.Count < 0 {
			return 0, fmt.Errorf("desired count must not be negative, got %d", *c.Count)
		}
		return *c.Count, nil
	}
	if !IsInteractive() {
		return 0, errors.New("--count is required when not running interactively")
	}
	v, err := AskWithDefault("Desired count of tasks", "1")
	if err != nil {
		return 0, err
	}
	if v == "0" {
		return 0, nil
	}
	return validate.PositiveInt("desired count", v, 0)
}

func (c *ECSScaleCmd) scale(system *System) error {
	cluster, err := pickCluster(system, c.Args.Cluster)
	if err != nil {
		return err
	}
	services, err := c.services(system, cluster)
	if err != nil {
		return err
	}
	desired, err := c.count()
	if err != nil {
		return err
	}
	for _, service := range services {
		ok, err := confirmAction(c.Yes, fmt.Sprintf("Scale %s in %s to %s task(s)?", service, cluster, strconv.Itoa(desired)))
		if err != nil {
			return err
		}
		if !ok {
			system.Logger.Info("Skipped %s", service)
			continue
		}
		res, err := system.Backend.ScaleService(cluster, service, desired)
		if err != nil {
			return err
		}
		system.Logger.Info("Scaled %s from %d to %d task(s)", res.Service, res.PreviousCount, res.DesiredCount)
	}
	return nil
}
