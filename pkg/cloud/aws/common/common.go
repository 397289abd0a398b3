package common

import (
	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/pkg/errors"
)

//GetAWSSession will return the aws session for a given region. A non empty
//endpoint points the session at an s3 compatible gateway with path style addressing.
func GetAWSSession(region, endpoint string) *session.Session {
	config := aws.Config{Region: aws.String(region)}
	if endpoint != "" {
		config.Endpoint = aws.String(endpoint)
		config.S3ForcePathStyle = aws.Bool(true)
	}
	return session.Must(session.NewSessionWithOptions(session.Options{
		SharedConfigState: session.SharedConfigEnable,
		Config:            config,
	}))
}

//CheckAWSError will return the aws errors
func CheckAWSError(err error) error {
	if aerr, ok := err.(awserr.Error); ok {
		return errors.Errorf("%v: %v", aerr.Code(), aerr.Message())
	}
	return errors.Errorf("%v", err)
}

//ErrorCode returns the aws error code of err, or an empty string
func ErrorCode(err error) string {
	if aerr, ok := err.(awserr.Error); ok {
		return aerr.Code()
	}
	return ""
}
