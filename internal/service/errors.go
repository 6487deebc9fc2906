package service

import "errors"

var (
	// ErrInvalidInput marks a request that is well-formed but violates a domain rule.
	ErrInvalidInput = errors.New("invalid input")
	// ErrForbidden indicates the actor may not touch the resource.
	ErrForbidden = errors.New("forbidden")

	// ErrUserNotFound indicates the account does not exist.
	ErrUserNotFound = errors.New("user not found")
	// ErrEmailTaken indicates another account already uses the e-mail.
	ErrEmailTaken = errors.New("email already registered")
	// ErrStudentNumberTaken indicates another student already holds the student number.
	ErrStudentNumberTaken = errors.New("student number already registered")
	// ErrInvalidCredentials covers unknown e-mail, wrong password and inactive accounts.
	ErrInvalidCredentials = errors.New("invalid email or password")
	// ErrUserHasClasses prevents deleting, demoting or deactivating a teacher that still owns classes.
	ErrUserHasClasses = errors.New("user still owns classes")

	// ErrClassNotFound indicates the class or class code does not exist.
	ErrClassNotFound = errors.New("class not found")
	// ErrClassArchived indicates the class no longer accepts changes from students.
	ErrClassArchived = errors.New("class is archived")
	// ErrCodeGeneration indicates no unique class code could be generated.
	ErrCodeGeneration = errors.New("unable to generate a unique class code")

	// ErrEnrollmentNotFound indicates the enrollment does not exist.
	ErrEnrollmentNotFound = errors.New("enrollment not found")
	// ErrAlreadyEnrolled indicates the student is already approved in the class.
	ErrAlreadyEnrolled = errors.New("already enrolled in class")
	// ErrEnrollmentPending indicates a join request is already waiting for a decision.
	ErrEnrollmentPending = errors.New("enrollment request is pending")
	// ErrNotEnrolled indicates the student holds no approved enrollment in the class.
	ErrNotEnrolled = errors.New("student is not enrolled in class")

	// ErrMaterialNotFound indicates the quiz or assignment does not exist.
	ErrMaterialNotFound = errors.New("material not found")
	// ErrSubmissionNotFound indicates the submission does not exist.
	ErrSubmissionNotFound = errors.New("submission not found")
	// ErrPastDue indicates the quiz deadline has passed.
	ErrPastDue = errors.New("material is past due")
	// ErrAlreadySubmitted indicates the student already submitted the material.
	ErrAlreadySubmitted = errors.New("already submitted")
	// ErrAlreadyGraded indicates the submission has its final score.
	ErrAlreadyGraded = errors.New("submission already graded")
	// ErrWrongMaterialKind indicates a quiz endpoint was used for an assignment or vice versa.
	ErrWrongMaterialKind = errors.New("operation does not match material kind")
	// ErrMaterialHasSubmissions blocks changes that would invalidate existing scores.
	ErrMaterialHasSubmissions = errors.New("material already has submissions")

	// ErrFileRequired indicates a multipart upload is missing.
	ErrFileRequired = errors.New("file is required")
	// ErrFileTooLarge indicates the upload exceeded the size limit.
	ErrFileTooLarge = errors.New("file exceeds maximum allowed size")
	// ErrFileTypeNotAllowed indicates the sniffed MIME type is not accepted.
	ErrFileTypeNotAllowed = errors.New("file type not allowed")
	// ErrStorageUnavailable indicates uploads are not configured on this node.
	ErrStorageUnavailable = errors.New("file storage is not configured")

	// ErrMessageNotFound indicates the message does not exist.
	ErrMessageNotFound = errors.New("message not found")
)
