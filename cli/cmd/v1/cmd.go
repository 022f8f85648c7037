package cmd

type Commands struct {
	Config        ConfigCmd        `command:"config" subcommands-optional:"true" description:"Show or change the default instance and connection preferences"`
	Instance      InstanceCmd      `command:"instance" subcommands-optional:"true" description:"Start, stop, connect to and inspect EC2 instances"`
	AMI           AMICmd           `command:"ami" subcommands-optional:"true" description:"Create images and manage launch templates"`
	Volume        VolumeCmd        `command:"volume" subcommands-optional:"true" description:"List and resize EBS volumes"`
	Snapshot      SnapshotCmd      `command:"snapshot" subcommands-optional:"true" description:"Create and list EBS snapshots"`
	SG            SGCmd            `command:"sg" subcommands-optional:"true" description:"Manage security group IP rules"`
	ECS           ECSCmd           `command:"ecs" subcommands-optional:"true" description:"List and scale ECS services"`
	AutoShutdown  AutoShutdownCmd  `command:"autoshutdown" subcommands-optional:"true" description:"Stop an instance automatically when its CPU is idle"`
	AutoTerminate AutoTerminateCmd `command:"autoterminate" subcommands-optional:"true" description:"Terminate an instance automatically when its CPU is idle"`
	Schedule      ScheduleCmd      `command:"schedule" subcommands-optional:"true" description:"Wake and sleep instances on a schedule"`
	Version       VersionCmd       `command:"version" subcommands-optional:"true" description:"Print remote version"`
	Help          HelpCmd          `command:"help" subcommands-optional:"true" description:"Print help"`
}

type InstanceCmd struct {
	List          InstanceListCmd          `command:"list" subcommands-optional:"true" description:"List instances" alias:"ls"`
	Status        InstanceStatusCmd        `command:"status" subcommands-optional:"true" description:"Show details of one instance"`
	Start         InstanceStartCmd         `command:"start" subcommands-optional:"true" description:"Start an instance"`
	Stop          InstanceStopCmd          `command:"stop" subcommands-optional:"true" description:"Stop an instance now or schedule a shutdown"`
	Connect       InstanceConnectCmd       `command:"connect" subcommands-optional:"true" description:"Open an interactive session"`
	Forward       InstanceForwardCmd       `command:"forward" subcommands-optional:"true" description:"Forward a remote port to localhost"`
	Exec          InstanceExecCmd          `command:"exec" subcommands-optional:"true" description:"Run a command on an instance"`
	Type          InstanceTypeCmd          `command:"type" subcommands-optional:"true" description:"Show or change the instance type"`
	Launch        InstanceLaunchCmd        `command:"launch" subcommands-optional:"true" description:"Launch an instance from a launch template"`
	Terminate     InstanceTerminateCmd     `command:"terminate" subcommands-optional:"true" description:"Terminate an instance"`
	Copy          InstanceCopyCmd          `command:"copy" subcommands-optional:"true" description:"Copy files to or from an instance" alias:"cp"`
	Sync          InstanceSyncCmd          `command:"sync" subcommands-optional:"true" description:"Mirror files to or from an instance"`
	Stats         InstanceStatsCmd         `command:"stats" subcommands-optional:"true" description:"Show tracked usage and cost"`
	TrackingReset InstanceTrackingResetCmd `command:"tracking-reset" subcommands-optional:"true" description:"Clear tracked usage"`
	Help          HelpCmd                  `command:"help" subcommands-optional:"true" description:"Print help"`
}

func (c *InstanceCmd) Execute(args []string) error {
	c.Help.Execute(args)
	return nil
}

type AMICmd struct {
	Create           AMICreateCmd           `command:"create" subcommands-optional:"true" description:"Create an image from an instance"`
	List             AMIListCmd             `command:"list" subcommands-optional:"true" description:"List images owned by this account" alias:"ls"`
	Templates        AMITemplatesCmd        `command:"list-templates" subcommands-optional:"true" description:"List launch templates" alias:"templates"`
	TemplateVersions AMITemplateVersionsCmd `command:"template-versions" subcommands-optional:"true" description:"List the versions of a launch template"`
	TemplateInfo     AMITemplateInfoCmd     `command:"template-info" subcommands-optional:"true" description:"Show one launch template version"`
	CreateTemplate   AMICreateTemplateCmd   `command:"create-template" subcommands-optional:"true" description:"Create a launch template"`
	Help             HelpCmd                `command:"help" subcommands-optional:"true" description:"Print help"`
}

func (c *AMICmd) Execute(args []string) error {
	c.Help.Execute(args)
	return nil
}

type VolumeCmd struct {
	List   VolumeListCmd   `command:"list" subcommands-optional:"true" description:"List volumes attached to an instance" alias:"ls"`
	Resize VolumeResizeCmd `command:"resize" subcommands-optional:"true" description:"Grow a volume"`
	Help   HelpCmd         `command:"help" subcommands-optional:"true" description:"Print help"`
}

func (c *VolumeCmd) Execute(args []string) error {
	c.Help.Execute(args)
	return nil
}

type SnapshotCmd struct {
	Create SnapshotCreateCmd `command:"create" subcommands-optional:"true" description:"Snapshot a volume"`
	List   SnapshotListCmd   `command:"list" subcommands-optional:"true" description:"List snapshots of an instance's volumes" alias:"ls"`
	Help   HelpCmd           `command:"help" subcommands-optional:"true" description:"Print help"`
}

func (c *SnapshotCmd) Execute(args []string) error {
	c.Help.Execute(args)
	return nil
}

type ECSCmd struct {
	Clusters ECSClustersCmd `command:"clusters" subcommands-optional:"true" description:"List ECS clusters" alias:"ls-clusters"`
	Services ECSServicesCmd `command:"services" subcommands-optional:"true" description:"List services in a cluster" alias:"ls-services"`
	Scale    ECSScaleCmd    `command:"scale" subcommands-optional:"true" description:"Set the desired task count of a service"`
	Help     HelpCmd        `command:"help" subcommands-optional:"true" description:"Print help"`
}

func (c *ECSCmd) Execute(args []string) error {
	c.Help.Execute(args)
	return nil
}

// instanceNameArg is the optional instance name most commands accept.
type instanceNameArg struct {
	Name string `positional-arg-name:"INSTANCE" description:"Instance name, defaults to the configured instance_name"`
}

// listOutput carries the flags shared by list commands.
type listOutput struct {
	Output     string   `short:"o" long:"output" description:"Output format (table, json, json-indent, yaml, csv, tsv, html, markdown)" default:"table"`
	TableTheme string   `short:"t" long:"table-theme" description:"Table theme (default, frame, box)" default:"default"`
	SortBy     []string `short:"s" long:"sort-by" description:"Can be specified multiple times. Sort by format: FIELDNAME:asc|dsc|ascnum|dscnum"`
	Pager      bool     `short:"p" long:"pager" description:"Use a pager to display the output"`
}
