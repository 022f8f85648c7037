package backend

import (
	"context"
	"errors"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"github.com/lithammer/shortuuid"
)

type Image struct {
	ID           string
	Name         string
	State        string
	CreationDate string
	Description  string
}

type LaunchTemplate struct {
	ID             string
	Name           string
	LatestVersion  int64
	DefaultVersion int64
	CreateTime     time.Time
}

type LaunchTemplateBlockDevice struct {
	DeviceName string
	SizeGiB    int
	VolumeType string
}

type LaunchTemplateVersion struct {
	Number         int64
	Description    string
	CreateTime     time.Time
	CreatedBy      string
	IsDefault      bool
	InstanceType   string
	ImageID        string
	KeyName        string
	SecurityGroups []string
	Subnets        []string
	BlockDevices   []LaunchTemplateBlockDevice
}

// AccountID returns the AWS account of the current credentials.
func (b *Backend) AccountID() (string, error) {
	log := b.log.WithPrefix("AccountID: job=" + shortuuid.New() + " ")
	log.Detail("Start")
	defer log.Detail("End")
	out, err := b.sts.GetCallerIdentity(context.TODO(), &sts.GetCallerIdentityInput{})
	if err != nil {
		return "", wrapErr("STS", "GetCallerIdentity", err)
	}
	if out.Account == nil {
		return "", errors.New("account ID not found in caller identity response")
	}
	log.Detail("account=%s arn=%s", aws.ToString(out.Account), aws.ToString(out.Arn))
	return aws.ToString(out.Account), nil
}

// CreateImage creates an AMI from the instance and returns the new image ID.
func (b *Backend) CreateImage(instanceID string, name string, description string, noReboot bool) (string, error) {
	log := b.log.WithPrefix("CreateImage: job=" + shortuuid.New() + " id=" + instanceID + " ")
	log.Detail("Start")
	defer log.Detail("End")
	out, err := b.ec2.CreateImage(context.TODO(), &ec2.CreateImageInput{
		InstanceId:  aws.String(instanceID),
		Name:        aws.String(name),
		Description: aws.String(description),
		NoReboot:    aws.Bool(noReboot),
	})
	if err != nil {
		return "", wrapErr("EC2", "CreateImage", err)
	}
	return aws.ToString(out.ImageId), nil
}

// Images lists the AMIs owned by the current account, newest first.
func (b *Backend) Images() ([]*Image, error) {
	log := b.log.WithPrefix("Images: job=" + shortuuid.New() + " ")
	log.Detail("Start")
	defer log.Detail("End")
	account, err := b.AccountID()
	if err != nil {
		return nil, err
	}
	list := []*Image{}
	paginator := ec2.NewDescribeImagesPaginator(b.ec2, &ec2.DescribeImagesInput{
		Owners: []string{account},
	})
	for paginator.HasMorePages() {
		out, err := paginator.NextPage(context.TODO())
		if err != nil {
			return nil, wrapErr("EC2", "DescribeImages", err)
		}
		for _, img := range out.Images {
			list = append(list, &Image{
				ID:           aws.ToString(img.ImageId),
				Name:         aws.ToString(img.Name),
				State:        string(img.State),
				CreationDate: aws.ToString(img.CreationDate),
				Description:  aws.ToString(img.Description),
			})
		}
	}
	sort.Slice(list, func(i, j int) bool {
		return list[i].CreationDate > list[j].CreationDate
	})
	return list, nil
}

// LaunchTemplates lists launch templates whose name contains filter, case-insensitively.
func (b *Backend) LaunchTemplates(filter string) ([]*LaunchTemplate, error) {
	log := b.log.WithPrefix("LaunchTemplates: job=" + shortuuid.New() + " ")
	log.Detail("Start")
	defer log.Detail("End")
	filter = strings.ToLower(filter)
	list := []*LaunchTemplate{}
	paginator := ec2.NewDescribeLaunchTemplatesPaginator(b.ec2, &ec2.DescribeLaunchTemplatesInput{})
	for paginator.HasMorePages() {
		out, err := paginator.NextPage(context.TODO())
		if err != nil {
			return nil, wrapErr("EC2", "DescribeLaunchTemplates", err)
		}
		for _, t := range out.LaunchTemplates {
			name := aws.ToString(t.LaunchTemplateName)
			if filter != "" && !strings.Contains(strings.ToLower(name), filter) {
				continue
			}
			list = append(list, &LaunchTemplate{
				ID:             aws.ToString(t.LaunchTemplateId),
				Name:           name,
				LatestVersion:  aws.ToInt64(t.LatestVersionNumber),
				DefaultVersion: aws.ToInt64(t.DefaultVersionNumber),
				CreateTime:     aws.ToTime(t.CreateTime),
			})
		}
	}
	return list, nil
}

// LaunchTemplateID resolves a launch template name to its ID.
func (b *Backend) LaunchTemplateID(name string) (string, error) {
	if strings.TrimSpace(name) == "" {
		return "", errors.New("launch template name cannot be empty")
	}
	out, err := b.ec2.DescribeLaunchTemplates(context.TODO(), &ec2.DescribeLaunchTemplatesInput{
		LaunchTemplateNames: []string{name},
	})
	if err != nil {
		if IsAPIError(err, "InvalidLaunchTemplateName.NotFoundException", "InvalidLaunchTemplateName.MalformedException") {
			return "", &NotFoundError{Kind: "launch template", ID: name}
		}
		return "", wrapErr("EC2", "DescribeLaunchTemplates", err)
	}
	if len(out.LaunchTemplates) == 0 {
		return "", &NotFoundError{Kind: "launch template", ID: name}
	}
	return aws.ToString(out.LaunchTemplates[0].LaunchTemplateId), nil
}

// LaunchTemplateVersions returns all versions of a template, newest first.
func (b *Backend) LaunchTemplateVersions(name string) ([]*LaunchTemplateVersion, error) {
	log := b.log.WithPrefix("LaunchTemplateVersions: job=" + shortuuid.New() + " name=" + name + " ")
	log.Detail("Start")
	defer log.Detail("End")
	list := []*LaunchTemplateVersion{}
	paginator := ec2.NewDescribeLaunchTemplateVersionsPaginator(b.ec2, &ec2.DescribeLaunchTemplateVersionsInput{
		LaunchTemplateName: aws.String(name),
	})
	for paginator.HasMorePages() {
		out, err := paginator.NextPage(context.TODO())
		if err != nil {
			if IsAPIError(err, "InvalidLaunchTemplateName.NotFoundException", "InvalidLaunchTemplateId.NotFound") {
				return nil, &NotFoundError{Kind: "launch template", ID: name}
			}
			return nil, wrapErr("EC2", "DescribeLaunchTemplateVersions", err)
		}
		for _, v := range out.LaunchTemplateVersions {
			list = append(list, templateVersionFromEC2(v))
		}
	}
	sort.Slice(list, func(i, j int) bool {
		return list[i].Number > list[j].Number
	})
	return list, nil
}

func templateVersionFromEC2(v types.LaunchTemplateVersion) *LaunchTemplateVersion {
	ver := &LaunchTemplateVersion{
		Number:      aws.ToInt64(v.VersionNumber),
		Description: aws.ToString(v.VersionDescription),
		CreateTime:  aws.ToTime(v.CreateTime),
		CreatedBy:   aws.ToString(v.CreatedBy),
		IsDefault:   aws.ToBool(v.DefaultVersion),
	}
	d := v.LaunchTemplateData
	if d == nil {
		return ver
	}
	ver.InstanceType = string(d.InstanceType)
	ver.ImageID = aws.ToString(d.ImageId)
	ver.KeyName = aws.ToString(d.KeyName)
	ver.SecurityGroups = append(ver.SecurityGroups, d.SecurityGroupIds...)
	for _, ni := range d.NetworkInterfaces {
		ver.Subnets = append(ver.Subnets, aws.ToString(ni.SubnetId))
		ver.SecurityGroups = append(ver.SecurityGroups, ni.Groups...)
	}
	for _, bd := range d.BlockDeviceMappings {
		dev := LaunchTemplateBlockDevice{DeviceName: aws.ToString(bd.DeviceName)}
		if bd.Ebs != nil {
			dev.SizeGiB = int(aws.ToInt32(bd.Ebs.VolumeSize))
			dev.VolumeType = string(bd.Ebs.VolumeType)
		}
		ver.BlockDevices = append(ver.BlockDevices, dev)
	}
	return ver
}

// LaunchTemplateVersion picks one version: "$Latest", "$Default" or a version number.
func (b *Backend) LaunchTemplateVersion(name string, version string) (*LaunchTemplateVersion, error) {
	versions, err := b.LaunchTemplateVersions(name)
	if err != nil {
		return nil, err
	}
	if len(versions) == 0 {
		return nil, &NotFoundError{Kind: "launch template versions of", ID: name}
	}
	switch version {
	case "", "$Latest":
		return versions[0], nil
	case "$Default":
		for _, v := range versions {
			if v.IsDefault {
				return v, nil
			}
		}
	default:
		for _, v := range versions {
			if strconv.FormatInt(v.Number, 10) == version {
				return v, nil
			}
		}
	}
	return nil, &NotFoundError{Kind: "launch template version", ID: name + ":" + version}
}

// CreateLaunchTemplate creates a template with an AMI, instance type and key pair.
func (b *Backend) CreateLaunchTemplate(name string, amiID string, instanceType string, keyName string) (string, error) {
	log := b.log.WithPrefix("CreateLaunchTemplate: job=" + shortuuid.New() + " name=" + name + " ")
	log.Detail("Start")
	defer log.Detail("End")
	data := &types.RequestLaunchTemplateData{
		ImageId:      aws.String(amiID),
		InstanceType: types.InstanceType(instanceType),
	}
	if keyName != "" {
		data.KeyName = aws.String(keyName)
	}
	out, err := b.ec2.CreateLaunchTemplate(context.TODO(), &ec2.CreateLaunchTemplateInput{
		LaunchTemplateName: aws.String(name),
		LaunchTemplateData: data,
		TagSpecifications: []types.TagSpecification{
			{
				ResourceType: types.ResourceTypeLaunchTemplate,
				Tags: []types.Tag{
					{
						Key:   aws.String("Name"),
						Value: aws.String(name),
					},
				},
			},
		},
	})
	if err != nil {
		return "", wrapErr("EC2", "CreateLaunchTemplate", err)
	}
	if out.LaunchTemplate == nil {
		return "", errors.New("CreateLaunchTemplate returned no template")
	}
	return aws.ToString(out.LaunchTemplate.LaunchTemplateId), nil
}
