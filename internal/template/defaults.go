package template

import "github.com/supplierportal/notify-api/internal/model"

const signature = `<p>Best regards,<br>Supplier Application Team</p>`

// Defaults returns the built-in templates, one per notification type.
func Defaults() []model.NotificationTemplate {
	return []model.NotificationTemplate{
		{
			Name:             "Application Submitted Notification",
			NotificationType: model.TypeApplicationSubmitted,
			Subject:          "Application Received - {{ business_name }}",
			BodyHTML: `<h2>Application Received</h2>
<p>Dear {{ business_name }},</p>
<p>Thank you for applying to become a supplier. Your application has been received and will be reviewed shortly.</p>
<ul>
<li><strong>Tracking Code:</strong> {{ tracking_code }}</li>
<li><strong>Submitted:</strong> {{ application_date }}</li>
</ul>
` + signature,
			BodyText: `Application Received

Dear {{ business_name }},

Thank you for applying to become a supplier. Your application has been received and will be reviewed shortly.

Tracking Code: {{ tracking_code }}
Submitted: {{ application_date }}

Supplier Application Team`,
			IsActive: true,
		},
		{
			Name:             "Document Request Notification",
			NotificationType: model.TypeDocumentsRequested,
			Subject:          "Additional Documents Required - {{ business_name }}",
			BodyHTML: `<h2>Additional Documents Required</h2>
<p>Dear {{ business_name }},</p>
<p>We have reviewed your supplier application and need additional documents to complete the process.</p>
<h3>Missing Documents:</h3>
<ul>
{% for doc in missing_documents %}<li>{{ doc }}</li>
{% endfor %}</ul>
<p><strong>Message from our team:</strong><br>{{ message }}</p>
<p><a href="{{ submission_link }}">Upload Documents</a></p>
` + signature,
			BodyText: `Additional Documents Required

Dear {{ business_name }},

We have reviewed your supplier application and need additional documents to complete the process.

Missing Documents:
{% for doc in missing_documents %}- {{ doc }}
{% endfor %}
Message from our team:
{{ message }}

Upload the missing documents here: {{ submission_link }}

Supplier Application Team`,
			IsActive: true,
		},
		{
			Name:             "Application Approval Notification",
			NotificationType: model.TypeApplicationApproved,
			Subject:          "Congratulations! Your Application Has Been Approved - {{ business_name }}",
			BodyHTML: `<h2>Application Approved!</h2>
<p>Dear {{ business_name }},</p>
<p>Congratulations! Your supplier application has been approved.</p>
<ul>
<li><strong>Tracking Code:</strong> {{ tracking_code }}</li>
<li><strong>Approved Date:</strong> {{ approved_date }}</li>
</ul>
<p>{{ approval_comment }}</p>
` + signature,
			BodyText: `Application Approved!

Dear {{ business_name }},

Congratulations! Your supplier application has been approved.

Tracking Code: {{ tracking_code }}
Approved Date: {{ approved_date }}

{{ approval_comment }}

Supplier Application Team`,
			IsActive: true,
		},
		{
			Name:             "Application Rejection Notification",
			NotificationType: model.TypeApplicationRejected,
			Subject:          "Application Update - {{ business_name }}",
			BodyHTML: `<h2>Application Update</h2>
<p>Dear {{ business_name }},</p>
<p>After careful review, we regret to inform you that your application has not been approved at this time.</p>
<h3>Reason:</h3>
<p>{{ reason }}</p>
<p>You may submit a new application at any time.</p>
` + signature,
			BodyText: `Application Update

Dear {{ business_name }},

After careful review, we regret to inform you that your application has not been approved at this time.

Reason:
{{ reason }}

You may submit a new application at any time.

Supplier Application Team`,
			IsActive: true,
		},
		{
			Name:             "Password Reset",
			NotificationType: model.TypePasswordReset,
			Subject:          "Reset your password",
			BodyHTML: `<p>Hello {{ name }},</p>
<p>A password reset was requested for your account. <a href="{{ reset_link }}">Choose a new password</a>. The link expires in {{ expires_in }}.</p>
<p>If you did not request this, you can ignore this email.</p>
` + signature,
			BodyText: `Hello {{ name }},

A password reset was requested for your account. Choose a new password: {{ reset_link }}
The link expires in {{ expires_in }}.

If you did not request this, you can ignore this email.`,
			IsActive: true,
		},
		{
			Name:             "Account Created",
			NotificationType: model.TypeAccountCreated,
			Subject:          "Your supplier portal account - {{ business_name }}",
			BodyHTML: `<p>Dear {{ business_name }},</p>
<p>Your supplier portal account has been created for <strong>{{ user_email }}</strong>.</p>
<p><a href="{{ login_url }}">Sign in</a> and set your password to get started.</p>
` + signature,
			BodyText: `Dear {{ business_name }},

Your supplier portal account has been created for {{ user_email }}.
Sign in and set your password to get started: {{ login_url }}`,
			IsActive: true,
		},
		{
			Name:             "Admin Notification",
			NotificationType: model.TypeAdminNotification,
			Subject:          "[Supplier Portal] {{ title }}",
			BodyHTML:         `<p>{{ message }}</p><p><a href="{{ link }}">{{ link }}</a></p>`,
			BodyText: `{{ message }}

{{ link }}`,
			IsActive: true,
		},
	}
}
