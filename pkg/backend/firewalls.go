package backend

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/ivyleavedtoadflax/remote.py/pkg/validate"
	"github.com/lithammer/shortuuid"
)

const ruleDescription = "Added by remote.py"

// SecurityGroupPrefix names the per-instance groups created by launch --create-sg.
const SecurityGroupPrefix = "remotepy-"

type SecurityGroup struct {
	ID    string
	Name  string
	VpcID string
	CIDRs []string
}

// PublicIP asks the configured lookup service for the caller's IPv4 address.
func (b *Backend) PublicIP() (string, error) {
	log := b.log.WithPrefix("PublicIP: job=" + shortuuid.New() + " ")
	log.Detail("Start")
	defer log.Detail("End")
	resp, err := b.http.R().Get("")
	if err != nil {
		return "", fmt.Errorf("could not determine public IP: %w", err)
	}
	if resp.IsError() {
		return "", fmt.Errorf("could not determine public IP: lookup returned %s", resp.Status())
	}
	ip, err := validate.IPv4(strings.TrimSpace(resp.String()))
	if err != nil {
		return "", fmt.Errorf("public IP lookup returned an invalid address: %w", err)
	}
	return ip, nil
}

func coversPort(p types.IpPermission, port int) bool {
	proto := aws.ToString(p.IpProtocol)
	if proto == "-1" {
		return true
	}
	if proto != "tcp" {
		return false
	}
	return int(aws.ToInt32(p.FromPort)) <= port && port <= int(aws.ToInt32(p.ToPort))
}

func (b *Backend) describeGroups(input *ec2.DescribeSecurityGroupsInput) ([]types.SecurityGroup, error) {
	groups := []types.SecurityGroup{}
	paginator := ec2.NewDescribeSecurityGroupsPaginator(b.ec2, input)
	for paginator.HasMorePages() {
		out, err := paginator.NextPage(context.TODO())
		if err != nil {
			if IsAPIError(err, "InvalidGroup.NotFound", "InvalidGroupId.Malformed") {
				return nil, &NotFoundError{Kind: "security group", ID: strings.Join(input.GroupIds, ",")}
			}
			return nil, wrapErr("EC2", "DescribeSecurityGroups", err)
		}
		groups = append(groups, out.SecurityGroups...)
	}
	return groups, nil
}

// InstanceSecurityGroups returns the groups attached to the instance.
func (b *Backend) InstanceSecurityGroups(instanceID string) ([]SecurityGroupRef, error) {
	inst, err := b.Instance(instanceID)
	if err != nil {
		return nil, err
	}
	if len(inst.SecurityGroups) == 0 {
		return nil, &NotFoundError{Kind: "security groups of instance", ID: instanceID}
	}
	return inst.SecurityGroups, nil
}

// PortRules lists the CIDRs allowed to reach the port through the group.
func (b *Backend) PortRules(groupID string, port int) (*SecurityGroup, error) {
	log := b.log.WithPrefix("PortRules: job=" + shortuuid.New() + " group=" + groupID + " ")
	log.Detail("Start")
	defer log.Detail("End")
	groups, err := b.describeGroups(&ec2.DescribeSecurityGroupsInput{
		GroupIds: []string{groupID},
	})
	if err != nil {
		return nil, err
	}
	if len(groups) == 0 {
		return nil, &NotFoundError{Kind: "security group", ID: groupID}
	}
	g := groups[0]
	sg := &SecurityGroup{
		ID:    aws.ToString(g.GroupId),
		Name:  aws.ToString(g.GroupName),
		VpcID: aws.ToString(g.VpcId),
		CIDRs: []string{},
	}
	for _, p := range g.IpPermissions {
		if !coversPort(p, port) {
			continue
		}
		for _, r := range p.IpRanges {
			if c := aws.ToString(r.CidrIp); c != "" {
				sg.CIDRs = append(sg.CIDRs, c)
			}
		}
	}
	return sg, nil
}

func tcpPermission(cidr string, port int, description string) []types.IpPermission {
	rng := types.IpRange{CidrIp: aws.String(cidr)}
	if description != "" {
		rng.Description = aws.String(description)
	}
	return []types.IpPermission{
		{
			IpProtocol: aws.String("tcp"),
			FromPort:   aws.Int32(int32(port)),
			ToPort:     aws.Int32(int32(port)),
			IpRanges:   []types.IpRange{rng},
		},
	}
}

// AddIP allows cidr to reach the port; a rule that already exists counts as success.
func (b *Backend) AddIP(groupID string, cidr string, port int) error {
	log := b.log.WithPrefix("AddIP: job=" + shortuuid.New() + " group=" + groupID + " cidr=" + cidr + " ")
	log.Detail("Start")
	defer log.Detail("End")
	_, err := b.ec2.AuthorizeSecurityGroupIngress(context.TODO(), &ec2.AuthorizeSecurityGroupIngressInput{
		GroupId:       aws.String(groupID),
		IpPermissions: tcpPermission(cidr, port, ruleDescription),
	})
	if err != nil && !IsAPIError(err, "InvalidPermission.Duplicate") {
		return wrapErr("EC2", "AuthorizeSecurityGroupIngress", err)
	}
	return nil
}

// RemoveIP revokes the rule for cidr on the port; a missing rule counts as success.
func (b *Backend) RemoveIP(groupID string, cidr string, port int) error {
	log := b.log.WithPrefix("RemoveIP: job=" + shortuuid.New() + " group=" + groupID + " cidr=" + cidr + " ")
	log.Detail("Start")
	defer log.Detail("End")
	_, err := b.ec2.RevokeSecurityGroupIngress(context.TODO(), &ec2.RevokeSecurityGroupIngressInput{
		GroupId:       aws.String(groupID),
		IpPermissions: tcpPermission(cidr, port, ""),
	})
	if err != nil && !IsAPIError(err, "InvalidPermission.NotFound") {
		return wrapErr("EC2", "RevokeSecurityGroupIngress", err)
	}
	return nil
}

// ClearRules revokes every CIDR on the port except exclude and returns how many went.
func (b *Backend) ClearRules(groupID string, port int, exclude string) (int, error) {
	log := b.log.WithPrefix("ClearRules: job=" + shortuuid.New() + " group=" + groupID + " ")
	log.Detail("Start")
	defer log.Detail("End")
	sg, err := b.PortRules(groupID, port)
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, cidr := range sg.CIDRs {
		if cidr == exclude {
			continue
		}
		if err := b.RemoveIP(groupID, cidr, port); err != nil {
			log.Warn("could not revoke %s: %s", cidr, err)
			continue
		}
		removed++
	}
	return removed, nil
}

type WhitelistResult struct {
	GroupID        string
	GroupName      string
	Added          bool
	AlreadyPresent bool
	Cleared        int
}

// WhitelistIP opens the port for cidr on every group of the instance.
// With exclusive set, all other CIDRs on the port are revoked first.
func (b *Backend) WhitelistIP(instanceID string, cidr string, port int, exclusive bool) ([]*WhitelistResult, error) {
	log := b.log.WithPrefix("WhitelistIP: job=" + shortuuid.New() + " id=" + instanceID + " ")
	log.Detail("Start")
	defer log.Detail("End")
	cidr, err := validate.CIDR(cidr)
	if err != nil {
		return nil, err
	}
	groups, err := b.InstanceSecurityGroups(instanceID)
	if err != nil {
		return nil, err
	}
	results := []*WhitelistResult{}
	for _, g := range groups {
		res := &WhitelistResult{GroupID: g.ID, GroupName: g.Name}
		if exclusive {
			res.Cleared, err = b.ClearRules(g.ID, port, cidr)
			if err != nil {
				return results, err
			}
		}
		sg, err := b.PortRules(g.ID, port)
		if err != nil {
			return results, err
		}
		for _, c := range sg.CIDRs {
			if c == cidr {
				res.AlreadyPresent = true
				break
			}
		}
		if !res.AlreadyPresent {
			if err := b.AddIP(g.ID, cidr, port); err != nil {
				return results, err
			}
			res.Added = true
		}
		results = append(results, res)
	}
	return results, nil
}

// CreateInstanceSecurityGroup creates remotepy-<name> in the VPC, reusing an existing group of that name.
func (b *Backend) CreateInstanceSecurityGroup(name string, vpcID string) (string, error) {
	log := b.log.WithPrefix("CreateInstanceSecurityGroup: job=" + shortuuid.New() + " name=" + name + " ")
	log.Detail("Start")
	defer log.Detail("End")
	groupName := SecurityGroupPrefix + name
	existing, err := b.describeGroups(&ec2.DescribeSecurityGroupsInput{
		Filters: []types.Filter{
			{
				Name:   aws.String("group-name"),
				Values: []string{groupName},
			}, {
				Name:   aws.String("vpc-id"),
				Values: []string{vpcID},
			},
		},
	})
	if err != nil {
		return "", err
	}
	if len(existing) > 0 {
		log.Detail("reusing %s", aws.ToString(existing[0].GroupId))
		return aws.ToString(existing[0].GroupId), nil
	}
	out, err := b.ec2.CreateSecurityGroup(context.TODO(), &ec2.CreateSecurityGroupInput{
		GroupName:   aws.String(groupName),
		Description: aws.String("remote.py managed group for " + name),
		VpcId:       aws.String(vpcID),
		TagSpecifications: []types.TagSpecification{
			{
				ResourceType: types.ResourceTypeSecurityGroup,
				Tags: []types.Tag{
					{
						Key:   aws.String("Name"),
						Value: aws.String(groupName),
					}, {
						Key:   aws.String("CreatedBy"),
						Value: aws.String("remotepy"),
					},
				},
			},
		},
	})
	if err != nil {
		return "", wrapErr("EC2", "CreateSecurityGroup", err)
	}
	return aws.ToString(out.GroupId), nil
}

// AttachSecurityGroup adds groupID to the instance, keeping the groups it already has.
func (b *Backend) AttachSecurityGroup(instanceID string, groupID string) error {
	log := b.log.WithPrefix("AttachSecurityGroup: job=" + shortuuid.New() + " id=" + instanceID + " group=" + groupID + " ")
	log.Detail("Start")
	defer log.Detail("End")
	current, err := b.InstanceSecurityGroups(instanceID)
	if err != nil && !IsNotFound(err) {
		return err
	}
	ids := []string{}
	for _, g := range current {
		if g.ID == groupID {
			return nil
		}
		ids = append(ids, g.ID)
	}
	ids = append(ids, groupID)
	_, err = b.ec2.ModifyInstanceAttribute(context.TODO(), &ec2.ModifyInstanceAttributeInput{
		InstanceId: aws.String(instanceID),
		Groups:     ids,
	})
	return wrapErr("EC2", "ModifyInstanceAttribute", err)
}
